// internal/infrastructure/messaging/rabbitmq/dispatcher.go
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/your-org/inventory-ledger/internal/domain/allocation"
	"github.com/your-org/inventory-ledger/internal/pkg/errs"
)

// Command names the operation a queue carries
type Command string

const (
	CommandReserve Command = "reserve"
	CommandFulfill Command = "fulfill"
	CommandRelease Command = "release"
)

// Envelope identifies the caller. Messages come from trusted services on the
// internal broker, so the tenant travels in the body instead of a token.
type Envelope struct {
	TenantID string `json:"tenant_id"`
	ActorID  string `json:"actor_id"`
}

// ReserveMessage asks for a hold
type ReserveMessage struct {
	Envelope
	allocation.ReserveRequest
}

// SettleMessage fulfills or releases an existing hold
type SettleMessage struct {
	Envelope
	AllocationID uuid.UUID `json:"allocation_id"`
	ReceiptID    string    `json:"receipt_id,omitempty"`
}

// Reply is published to the caller's ReplyTo queue
type Reply struct {
	OK    bool        `json:"ok"`
	Code  string      `json:"code,omitempty"`
	Error string      `json:"error,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// Dispatcher decodes command messages and runs them against the allocation
// service. It has no broker dependency.
type Dispatcher struct {
	allocations *allocation.Service
	log         logrus.FieldLogger
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(allocations *allocation.Service, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{
		allocations: allocations,
		log:         log,
	}
}

// Handle runs one command. Failures are reported in the reply, never as a
// Go error, so the consumer can always answer and ack.
func (d *Dispatcher) Handle(ctx context.Context, command Command, body []byte) Reply {
	data, err := d.dispatch(ctx, command, body)
	if err != nil {
		code := errs.Code(err)
		message := err.Error()
		if code == "internal_error" {
			d.log.WithError(err).WithField("command", command).Error("Inventory command failed")
			message = "internal error"
		}
		return Reply{Code: code, Error: message}
	}
	return Reply{OK: true, Data: data}
}

func (d *Dispatcher) dispatch(ctx context.Context, command Command, body []byte) (interface{}, error) {
	switch command {
	case CommandReserve:
		var msg ReserveMessage
		if err := decode(body, &msg, &msg.Envelope); err != nil {
			return nil, err
		}
		a, err := d.allocations.Reserve(ctx, msg.TenantID, msg.ActorID, &msg.ReserveRequest)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"allocation_id": a.ID,
			"expires_at":    a.ExpiresAt,
		}, nil

	case CommandFulfill:
		var msg SettleMessage
		if err := decode(body, &msg, &msg.Envelope); err != nil {
			return nil, err
		}
		_, eventIDs, err := d.allocations.Fulfill(ctx, msg.TenantID, msg.ActorID, msg.AllocationID, msg.ReceiptID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"event_ids": eventIDs}, nil

	case CommandRelease:
		var msg SettleMessage
		if err := decode(body, &msg, &msg.Envelope); err != nil {
			return nil, err
		}
		if _, err := d.allocations.Release(ctx, msg.TenantID, msg.ActorID, msg.AllocationID); err != nil {
			return nil, err
		}
		return map[string]interface{}{"ok": true}, nil

	default:
		return nil, fmt.Errorf("%w: unknown command %q", errs.ErrValidation, command)
	}
}

func decode(body []byte, msg interface{}, env *Envelope) error {
	if err := json.Unmarshal(body, msg); err != nil {
		return fmt.Errorf("%w: malformed message: %v", errs.ErrValidation, err)
	}
	if strings.TrimSpace(env.TenantID) == "" {
		return fmt.Errorf("%w: tenant_id is required", errs.ErrValidation)
	}
	if strings.TrimSpace(env.ActorID) == "" {
		return fmt.Errorf("%w: actor_id is required", errs.ErrValidation)
	}
	return nil
}
