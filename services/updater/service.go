package updater

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/motforex/merchant"
	"github.com/motforex/merchant/natsbus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// Feed delivers updates of a single invoice until the returned func is called.
type Feed interface {
	SubscribeInvoice(invoiceID int64, cb func(u *natsbus.InvoiceUpdate)) (func(), error)
}

type InvoiceGetter interface {
	GetInvoice(ctx context.Context, invoiceID int64) (*merchant.MerchantInvoice, error)
}

// Server streams invoice updates to websocket clients. The first frame is the
// stored invoice; the stream ends after a final status.
type Server struct {
	feed     Feed
	invoices InvoiceGetter
	upgrader websocket.Upgrader
	l        *zap.Logger
}

func NewServer(feed Feed, invoices InvoiceGetter) *Server {
	return &Server{
		feed:     feed,
		invoices: invoices,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		l: zap.L().Named("updater"),
	}
}

func (s *Server) Stream(c echo.Context) error {
	invoiceID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid invoice id")
	}
	inv, err := s.invoices.GetInvoice(c.Request().Context(), invoiceID)
	if err != nil {
		return echo.NewHTTPError(merchant.ErrorCode(err), err.Error())
	}

	// subscribe before upgrading so that no update is lost in between
	updates := make(chan *natsbus.InvoiceUpdate, sendBuffer)
	unsubscribe, err := s.feed.SubscribeInvoice(invoiceID, func(u *natsbus.InvoiceUpdate) {
		select {
		case updates <- u:
		default:
			s.l.Warn("Drop update, client is slow.", zap.Int64("invoice_id", invoiceID))
		}
	})
	if err != nil {
		return errors.Wrap(err, "Failed subscribe to invoice updates")
	}
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.l.Warn("Failed upgrade.", zap.Error(err))
		return nil
	}
	defer conn.Close()
	s.l.Info("Subscribed.", zap.Int64("invoice_id", invoiceID))
	defer s.l.Info("Unsubscribed.", zap.Int64("invoice_id", invoiceID))

	closed := make(chan struct{})
	go s.readPump(conn, closed)

	if err := s.write(conn, natsbus.NewInvoiceUpdate(inv)); err != nil {
		return nil
	}
	if final(inv.InvoiceStatus, inv.ExecutionStatus) {
		s.closeNormal(conn)
		return nil
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case u := <-updates:
			if err := s.write(conn, u); err != nil {
				return nil
			}
			if final(u.InvoiceStatus, u.ExecutionStatus) {
				s.closeNormal(conn)
				return nil
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-closed:
			return nil
		}
	}
}

// readPump drains client frames so that pongs and close frames are handled.
func (s *Server) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.l.Debug("Read failed.", zap.Error(err))
			}
			return
		}
	}
}

func (s *Server) write(conn *websocket.Conn, u *natsbus.InvoiceUpdate) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(u); err != nil {
		s.l.Warn("Failed send update.", zap.Int64("invoice_id", u.InvoiceID), zap.Error(err))
		return err
	}
	return nil
}

func (s *Server) closeNormal(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "final status")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func final(invoice, execution merchant.InvoiceStatus) bool {
	return !invoice.Match(merchant.StatusPending) && !execution.Match(merchant.StatusPending)
}
