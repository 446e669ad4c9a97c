// Package natsbus connects the reconciliation engine with the deposit service
// and with invoice update listeners over NATS.
package natsbus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/motforex/merchant"
)

const (
	SubjectDepositExecute = "deposit.execute"
	SubjectDepositExpired = "deposit.expired"
	SubjectInvoiceCheck   = "merchant.invoice.check"

	invoiceSubjectPrefix = "merchant.invoice."
)

// InvoiceSubject is the subject updates of an invoice are published on.
func InvoiceSubject(invoiceID int64) string {
	return fmt.Sprintf("%s%d", invoiceSubjectPrefix, invoiceID)
}

// Conn is the part of *nats.EncodedConn the bus uses.
type Conn interface {
	Publish(subject string, v interface{}) error
	RequestWithContext(ctx context.Context, subject string, v interface{}, vPtr interface{}) error
}

// Connect dials NATS and wraps the connection with the JSON encoder.
func Connect(url string, opts ...nats.Option) (*nats.EncodedConn, error) {
	opts = append([]nats.Option{
		nats.Name("merchant"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			zap.L().Named("nats").Warn("Disconnected.", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			zap.L().Named("nats").Info("Reconnected.", zap.String("url", nc.ConnectedUrl()))
		}),
	}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "Failed connect to nats")
	}
	ec, err := nats.NewEncodedConn(nc, nats.JSON_ENCODER)
	if err != nil {
		nc.Close()
		return nil, errors.Wrap(err, "Failed create encoded conn")
	}
	return ec, nil
}

type DepositCommand struct {
	MessageID string    `json:"message_id"`
	DepositID int64     `json:"deposit_id"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

type DepositReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Notifier asks the deposit service to execute a deposit and announces
// expired deposits.
type Notifier struct {
	conn    Conn
	timeout time.Duration
	l       *zap.Logger
}

func NewNotifier(conn Conn, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{conn: conn, timeout: timeout, l: zap.L().Named("natsbus")}
}

// Execute waits for the deposit service to confirm the execution.
func (n *Notifier) Execute(ctx context.Context, depositID int64, reason string) error {
	cmd := n.command(depositID, reason)
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	var reply DepositReply
	if err := n.conn.RequestWithContext(ctx, SubjectDepositExecute, cmd, &reply); err != nil {
		return errors.Wrap(err, "Failed request deposit execution")
	}
	if !reply.OK {
		return errors.Errorf("deposit %d was not executed: %s", depositID, reply.Error)
	}
	n.l.Info("Deposit executed.", zap.Int64("deposit_id", depositID), zap.String("message_id", cmd.MessageID))
	return nil
}

func (n *Notifier) MarkExpired(ctx context.Context, depositID int64, reason string) error {
	cmd := n.command(depositID, reason)
	if err := n.conn.Publish(SubjectDepositExpired, cmd); err != nil {
		return errors.Wrap(err, "Failed publish deposit expiry")
	}
	return nil
}

func (n *Notifier) command(depositID int64, reason string) *DepositCommand {
	return &DepositCommand{
		MessageID: uuid.New().String(),
		DepositID: depositID,
		Reason:    reason,
		At:        time.Now(),
	}
}

// InvoiceUpdate is published on InvoiceSubject after every persisted change.
type InvoiceUpdate struct {
	InvoiceID       int64                   `json:"invoice_id"`
	MerchantMethod  merchant.MerchantMethod `json:"merchant_method"`
	InvoiceStatus   merchant.InvoiceStatus  `json:"invoice_status"`
	ExecutionStatus merchant.InvoiceStatus  `json:"execution_status"`
	ExpiryDate      int64                   `json:"expiry_date"`
	Message         string                  `json:"message,omitempty"`
	Metadata        merchant.Metadata       `json:"metadata,omitempty"`
}

func NewInvoiceUpdate(inv *merchant.MerchantInvoice) *InvoiceUpdate {
	return &InvoiceUpdate{
		InvoiceID:       inv.ID,
		MerchantMethod:  inv.MerchantMethod,
		InvoiceStatus:   inv.InvoiceStatus,
		ExecutionStatus: inv.ExecutionStatus,
		ExpiryDate:      inv.ExpiryDate,
		Message:         inv.Message,
		Metadata:        inv.Metadata,
	}
}

// CheckRequest asks a worker to reconcile an invoice with its provider.
type CheckRequest struct {
	InvoiceID int64  `json:"invoice_id"`
	Source    string `json:"source"`
}

type Publisher struct {
	conn Conn
}

func NewPublisher(conn Conn) *Publisher {
	return &Publisher{conn: conn}
}

func (p *Publisher) PublishInvoice(ctx context.Context, inv *merchant.MerchantInvoice) error {
	if err := p.conn.Publish(InvoiceSubject(inv.ID), NewInvoiceUpdate(inv)); err != nil {
		return errors.Wrap(err, "Failed publish invoice update")
	}
	return nil
}

// RequestCheck queues a provider status check for invoiceID.
func (p *Publisher) RequestCheck(ctx context.Context, invoiceID int64, source string) error {
	if err := p.conn.Publish(SubjectInvoiceCheck, &CheckRequest{InvoiceID: invoiceID, Source: source}); err != nil {
		return errors.Wrap(err, "Failed publish check request")
	}
	return nil
}

// Feed delivers invoice updates from an encoded connection.
type Feed struct {
	ec *nats.EncodedConn
}

func NewFeed(ec *nats.EncodedConn) *Feed {
	return &Feed{ec: ec}
}

func (f *Feed) SubscribeInvoice(invoiceID int64, cb func(u *InvoiceUpdate)) (func(), error) {
	sub, err := f.ec.Subscribe(InvoiceSubject(invoiceID), cb)
	if err != nil {
		return nil, errors.Wrap(err, "Failed subscribe")
	}
	return func() { sub.Unsubscribe() }, nil
}

// check interfaces
var (
	_ merchant.DepositExecutionNotifier = (*Notifier)(nil)
	_ Conn                              = (*nats.EncodedConn)(nil)
)
