// Package pgstore keeps deposit requests and merchant invoices in Postgres
// through reform.
package pgstore

import (
	"context"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/reform.v1"

	"github.com/motforex/merchant"
)

const uniqueViolation = "23505"

type Invoices struct {
	db *reform.DB
	l  *zap.Logger
}

func NewInvoices(db *reform.DB) *Invoices {
	return &Invoices{db: db, l: zap.L().Named("pgstore")}
}

func (s *Invoices) GetByID(ctx context.Context, id int64) (*merchant.MerchantInvoice, error) {
	inv := &merchant.MerchantInvoice{ID: id}
	if err := s.db.Reload(inv); err != nil {
		if err == reform.ErrNoRows {
			return nil, merchant.ErrNotFound
		}
		return nil, errors.Wrap(err, "Failed find merchant invoice")
	}
	return inv, nil
}

func (s *Invoices) Create(ctx context.Context, inv *merchant.MerchantInvoice) error {
	if err := s.db.Insert(inv); err != nil {
		if isUniqueViolation(err) {
			return merchant.ErrAlreadyExists
		}
		return errors.Wrap(err, "Failed insert merchant invoice")
	}
	return nil
}

// ConditionalUpdate rewrites every column of inv in one statement whose WHERE
// clause carries the preconditions.
func (s *Invoices) ConditionalUpdate(ctx context.Context, inv *merchant.MerchantInvoice, conds ...merchant.Precondition) error {
	if err := inv.BeforeUpdate(); err != nil {
		return err
	}

	cols := merchant.MerchantInvoiceTable.Columns()
	vals := inv.Values()
	pk := merchant.MerchantInvoiceTable.PKColumnIndex()

	set := make([]string, 0, len(cols)-1)
	args := make([]interface{}, 0, len(cols)+len(conds))
	for i, c := range cols {
		if uint(i) == pk {
			continue
		}
		args = append(args, vals[i])
		set = append(set, s.db.QuoteIdentifier(c)+" = "+s.db.Placeholder(len(args)))
	}

	args = append(args, inv.ID)
	where := []string{s.db.QuoteIdentifier(cols[pk]) + " = " + s.db.Placeholder(len(args))}
	for _, c := range conds {
		args = append(args, c.Expected)
		where = append(where, s.db.QuoteIdentifier(c.Column())+" = "+s.db.Placeholder(len(args)))
	}

	query := "UPDATE " + s.db.QualifiedView(merchant.MerchantInvoiceTable) +
		" SET " + strings.Join(set, ", ") +
		" WHERE " + strings.Join(where, " AND ")
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return errors.Wrap(err, "Failed update merchant invoice")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "Failed update merchant invoice")
	}
	if n > 0 {
		return nil
	}

	if _, err := s.GetByID(ctx, inv.ID); err != nil {
		return err
	}
	s.l.Debug("precondition failed", zap.Int64("invoice_id", inv.ID), zap.Any("preconditions", conds))
	return merchant.ErrPreconditionFailed
}

type DepositRequests struct {
	db *reform.DB
}

func NewDepositRequests(db *reform.DB) *DepositRequests {
	return &DepositRequests{db: db}
}

func (s *DepositRequests) GetByID(ctx context.Context, id int64) (*merchant.DepositRequest, error) {
	d := &merchant.DepositRequest{ID: id}
	if err := s.db.Reload(d); err != nil {
		if err == reform.ErrNoRows {
			return nil, merchant.ErrNotFound
		}
		return nil, errors.Wrap(err, "Failed find deposit request")
	}
	return d, nil
}

func isUniqueViolation(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == uniqueViolation
}

// check interfaces
var (
	_ merchant.MerchantInvoiceStore  = (*Invoices)(nil)
	_ merchant.DepositRequestGateway = (*DepositRequests)(nil)
)
