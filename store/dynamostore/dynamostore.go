// Package dynamostore keeps merchant invoices and deposit requests in DynamoDB.
// Preconditions become condition expressions on the put.
package dynamostore

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/motforex/merchant"
)

const (
	DefaultInvoiceTable = "merchant-invoices"
	DefaultDepositTable = "deposit-requests"

	keyAttribute = "id"
)

// API is the part of the DynamoDB client the store uses.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type invoiceItem struct {
	ID                  int64             `dynamodbav:"id"`
	ReferenceID         string            `dynamodbav:"referenceId"`
	ReferenceType       string            `dynamodbav:"referenceType"`
	MerchantMethod      string            `dynamodbav:"merchantMethod"`
	ProviderID          string            `dynamodbav:"providerId"`
	ProviderReference   string            `dynamodbav:"providerReference"`
	ProviderInfo        merchant.Metadata `dynamodbav:"providerInfo,omitempty"`
	RegenerationCount   int               `dynamodbav:"regenerationCount"`
	ExpiryDate          int64             `dynamodbav:"expiryDate"`
	ConversionRate      string            `dynamodbav:"conversionRate"`
	TransactionAmount   string            `dynamodbav:"transactionAmount"`
	TransactionCurrency string            `dynamodbav:"transactionCurrency"`
	AmountInUsd         string            `dynamodbav:"amountInUsd"`
	InvoiceStatus       string            `dynamodbav:"invoiceStatus"`
	ExecutionStatus     string            `dynamodbav:"executionStatus"`
	Message             string            `dynamodbav:"message,omitempty"`
	Metadata            merchant.Metadata `dynamodbav:"metadata,omitempty"`
	PostDate            time.Time         `dynamodbav:"postDate"`
	CreatedAt           time.Time         `dynamodbav:"createdAt"`
	UpdatedAt           time.Time         `dynamodbav:"updatedAt"`
}

func toItem(inv *merchant.MerchantInvoice) invoiceItem {
	return invoiceItem{
		ID:                  inv.ID,
		ReferenceID:         inv.ReferenceID,
		ReferenceType:       string(inv.ReferenceType),
		MerchantMethod:      string(inv.MerchantMethod),
		ProviderID:          inv.ProviderID,
		ProviderReference:   inv.ProviderReference,
		ProviderInfo:        inv.ProviderInfo,
		RegenerationCount:   inv.RegenerationCount,
		ExpiryDate:          inv.ExpiryDate,
		ConversionRate:      inv.ConversionRate.String(),
		TransactionAmount:   inv.TransactionAmount.String(),
		TransactionCurrency: inv.TransactionCurrency,
		AmountInUsd:         inv.AmountInUsd.String(),
		InvoiceStatus:       string(inv.InvoiceStatus),
		ExecutionStatus:     string(inv.ExecutionStatus),
		Message:             inv.Message,
		Metadata:            inv.Metadata,
		PostDate:            inv.PostDate,
		CreatedAt:           inv.CreatedAt,
		UpdatedAt:           inv.UpdatedAt.UTC(),
	}
}

func (it invoiceItem) invoice() (*merchant.MerchantInvoice, error) {
	inv := &merchant.MerchantInvoice{
		ID:                  it.ID,
		ReferenceID:         it.ReferenceID,
		ReferenceType:       merchant.ReferenceType(it.ReferenceType),
		MerchantMethod:      merchant.MerchantMethod(it.MerchantMethod),
		ProviderID:          it.ProviderID,
		ProviderReference:   it.ProviderReference,
		ProviderInfo:        it.ProviderInfo,
		RegenerationCount:   it.RegenerationCount,
		ExpiryDate:          it.ExpiryDate,
		TransactionCurrency: it.TransactionCurrency,
		InvoiceStatus:       merchant.InvoiceStatus(it.InvoiceStatus),
		ExecutionStatus:     merchant.InvoiceStatus(it.ExecutionStatus),
		Message:             it.Message,
		Metadata:            it.Metadata,
		PostDate:            it.PostDate,
		CreatedAt:           it.CreatedAt,
		UpdatedAt:           it.UpdatedAt,
	}
	var err error
	if inv.ConversionRate, err = parseDecimal(it.ConversionRate); err != nil {
		return nil, err
	}
	if inv.TransactionAmount, err = parseDecimal(it.TransactionAmount); err != nil {
		return nil, err
	}
	if inv.AmountInUsd, err = parseDecimal(it.AmountInUsd); err != nil {
		return nil, err
	}
	if inv.Metadata == nil {
		inv.Metadata = merchant.Metadata{}
	}
	return inv, nil
}

type Invoices struct {
	api   API
	table string
	l     *zap.Logger
}

func NewInvoices(api API, table string) *Invoices {
	if table == "" {
		table = DefaultInvoiceTable
	}
	return &Invoices{api: api, table: table, l: zap.L().Named("dynamostore")}
}

func (s *Invoices) GetByID(ctx context.Context, id int64) (*merchant.MerchantInvoice, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.Wrap(err, "Failed get merchant invoice")
	}
	if len(out.Item) == 0 {
		return nil, merchant.ErrNotFound
	}
	var it invoiceItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, errors.Wrap(err, "Failed unmarshal merchant invoice")
	}
	return it.invoice()
}

func (s *Invoices) Create(ctx context.Context, inv *merchant.MerchantInvoice) error {
	if err := inv.BeforeInsert(); err != nil {
		return err
	}
	cond := expression.AttributeNotExists(expression.Name(keyAttribute))
	err := s.put(ctx, inv, cond)
	if isConditionFailed(err) {
		return merchant.ErrAlreadyExists
	}
	return err
}

// ConditionalUpdate replaces the stored item if it exists and every
// precondition holds on it.
func (s *Invoices) ConditionalUpdate(ctx context.Context, inv *merchant.MerchantInvoice, conds ...merchant.Precondition) error {
	if err := inv.BeforeUpdate(); err != nil {
		return err
	}
	cond := expression.AttributeExists(expression.Name(keyAttribute))
	for _, c := range conds {
		cond = cond.And(expression.Name(c.Attribute()).Equal(expression.Value(c.Expected)))
	}

	err := s.put(ctx, inv, cond)
	if !isConditionFailed(err) {
		return err
	}
	if _, err := s.GetByID(ctx, inv.ID); err != nil {
		return err
	}
	s.l.Debug("precondition failed", zap.Int64("invoice_id", inv.ID), zap.Any("preconditions", conds))
	return merchant.ErrPreconditionFailed
}

func (s *Invoices) put(ctx context.Context, inv *merchant.MerchantInvoice, cond expression.ConditionBuilder) error {
	item, err := attributevalue.MarshalMap(toItem(inv))
	if err != nil {
		return errors.Wrap(err, "Failed marshal merchant invoice")
	}
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return errors.Wrap(err, "Failed build condition")
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.table),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return err
		}
		return errors.Wrap(err, "Failed put merchant invoice")
	}
	return nil
}

type depositItem struct {
	ID                  int64     `dynamodbav:"id"`
	UserID              int64     `dynamodbav:"userId"`
	Email               string    `dynamodbav:"email"`
	Status              string    `dynamodbav:"status"`
	PaymentMethodTitle  string    `dynamodbav:"paymentMethodTitle"`
	Amount              string    `dynamodbav:"amount"`
	Currency            string    `dynamodbav:"currency"`
	ConversionRate      string    `dynamodbav:"conversionRate"`
	AmountInUsd         string    `dynamodbav:"amountInUsd"`
	TransactionCurrency string    `dynamodbav:"transactionCurrency"`
	CreatedAt           time.Time `dynamodbav:"createdAt"`
}

type DepositRequests struct {
	api   API
	table string
}

func NewDepositRequests(api API, table string) *DepositRequests {
	if table == "" {
		table = DefaultDepositTable
	}
	return &DepositRequests{api: api, table: table}
}

func (s *DepositRequests) GetByID(ctx context.Context, id int64) (*merchant.DepositRequest, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       key(id),
	})
	if err != nil {
		return nil, errors.Wrap(err, "Failed get deposit request")
	}
	if len(out.Item) == 0 {
		return nil, merchant.ErrNotFound
	}
	var it depositItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, errors.Wrap(err, "Failed unmarshal deposit request")
	}
	d := &merchant.DepositRequest{
		ID:                  it.ID,
		UserID:              it.UserID,
		Email:               it.Email,
		Status:              merchant.DepositStatus(it.Status),
		PaymentMethodTitle:  it.PaymentMethodTitle,
		Currency:            it.Currency,
		TransactionCurrency: it.TransactionCurrency,
		CreatedAt:           it.CreatedAt,
	}
	if d.Amount, err = parseDecimal(it.Amount); err != nil {
		return nil, err
	}
	if d.ConversionRate, err = parseDecimal(it.ConversionRate); err != nil {
		return nil, err
	}
	if d.AmountInUsd, err = parseDecimal(it.AmountInUsd); err != nil {
		return nil, err
	}
	return d, nil
}

func key(id int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		keyAttribute: &types.AttributeValueMemberN{Value: strconv.FormatInt(id, 10)},
	}
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "Failed parse amount %q", s)
	}
	return d, nil
}

func isConditionFailed(err error) bool {
	if err == nil {
		return false
	}
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// check interfaces
var (
	_ merchant.MerchantInvoiceStore  = (*Invoices)(nil)
	_ merchant.DepositRequestGateway = (*DepositRequests)(nil)
	_ API                            = (*dynamodb.Client)(nil)
)
