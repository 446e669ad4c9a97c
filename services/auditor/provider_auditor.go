package auditor

import (
	"context"
	"regexp"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/motforex/merchant/provider"
)

const (
	toConvertCap  = 1024
	toInsertCap   = 1024
	maxBatch      = 8192
	maxBatchDelay = time.Second
	maxBodySize   = 64 << 10

	DefaultDataset = "merchant"
	DefaultTable   = "provider_exchanges"
)

var secretRe = regexp.MustCompile(`("(?:access_token|refresh_token|password|secret|token)"\s*:\s*)"[^"]*"`)

type exchangeMessage struct {
	ex *provider.Exchange

	requestBody  string
	responseBody string
}

func (m *exchangeMessage) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"created_at":    m.ex.At,
		"provider":      string(m.ex.Provider),
		"method":        m.ex.Method,
		"url":           m.ex.URL,
		"status_code":   m.ex.StatusCode,
		"duration_ms":   m.ex.Duration.Milliseconds(),
		"error":         m.ex.Error,
		"request_body":  m.requestBody,
		"response_body": m.responseBody,
	}, "", nil
}

// Inserter writes a batch of rows. *bigquery.Inserter satisfies it.
type Inserter interface {
	Put(ctx context.Context, src interface{}) error
}

func NewBigQueryInserter(cl *bigquery.Client, dataset, table string) *bigquery.Inserter {
	if dataset == "" {
		dataset = DefaultDataset
	}
	if table == "" {
		table = DefaultTable
	}
	return cl.Dataset(dataset).Table(table).Inserter()
}

// ProviderAuditor stores every exchange with a payment processor. Audit never
// blocks: when the buffer is full the exchange is dropped and counted.
type ProviderAuditor struct {
	ins       Inserter
	toConvert chan *exchangeMessage
	toInsert  chan *exchangeMessage
	l         *zap.Logger
	wg        sync.WaitGroup
	stopOnce  sync.Once

	mConvertLen     prometheus.Gauge
	mInsertLen      prometheus.Gauge
	mDropped        prometheus.Counter
	mInsertSize     prometheus.Histogram
	mInsertDuration prometheus.Histogram
}

func NewProviderAuditor(ins Inserter) *ProviderAuditor {
	a := &ProviderAuditor{
		ins:       ins,
		toConvert: make(chan *exchangeMessage, toConvertCap),
		toInsert:  make(chan *exchangeMessage, toInsertCap),
		l:         zap.L().Named("auditor"),
		mConvertLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auditor_convert_len",
			Help: "Length of internal convert channel.",
		}),
		mInsertLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auditor_insert_len",
			Help: "Length of internal insert channel.",
		}),
		mDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auditor_dropped_total",
			Help: "Exchanges dropped because the buffer was full.",
		}),
		mInsertSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "auditor_insert_size_rows",
			Help:    "Size of a single batch insert.",
			Buckets: prometheus.ExponentialBuckets(maxBatch/32, 2, 5),
		}),
		mInsertDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "auditor_insert_duration_seconds",
			Help:    "Duration of a single batch insert.",
			Buckets: prometheus.ExponentialBuckets(maxBatchDelay.Seconds()/32, 2, 5),
		}),
	}

	a.l.Info("Started.")
	a.wg.Add(2)
	go a.runConverter()
	go a.runInserter()
	return a
}

func (a *ProviderAuditor) Stop() {
	a.stopOnce.Do(func() {
		close(a.toConvert)
		a.wg.Wait()
		a.l.Info("Stopped.")
	})
}

func (a *ProviderAuditor) Audit(ex *provider.Exchange) {
	select {
	case a.toConvert <- &exchangeMessage{ex: ex}:
	default:
		a.mDropped.Inc()
	}
}

func (a *ProviderAuditor) runConverter() {
	defer a.wg.Done()

	for m := range a.toConvert {
		m.requestBody = redact(m.ex.RequestBody)
		m.responseBody = redact(m.ex.ResponseBody)
		a.toInsert <- m
	}

	close(a.toInsert)
}

func (a *ProviderAuditor) runInserter() {
	defer a.wg.Done()
	t := time.NewTicker(maxBatchDelay)
	defer t.Stop()

	var exit bool
	for !exit {
		// collect batch up to maxBatch messages and up to maxBatchDelay seconds
		messages := make([]*exchangeMessage, 0, 64)
		var insert bool
		for !insert {
			select {
			case m, ok := <-a.toInsert:
				if !ok {
					exit = true
					insert = true
					break
				}

				messages = append(messages, m)
				if len(messages) == maxBatch {
					insert = true
				}

			case <-t.C:
				insert = true
			}
		}
		if len(messages) > 0 {
			a.insertBatch(messages)
		}
	}
}

func (a *ProviderAuditor) insertBatch(messages []*exchangeMessage) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer func() {
		cancel()
		d := time.Since(start)
		a.mInsertSize.Observe(float64(len(messages)))
		a.mInsertDuration.Observe(d.Seconds())
		a.l.Debug("Provider exchanges inserted.", zap.Int("count", len(messages)), zap.Duration("duration", d))
	}()
	if err := a.ins.Put(ctx, messages); err != nil {
		a.l.Error("Failed to put provider exchanges.", zap.Error(err))
	}
}

func redact(b []byte) string {
	if len(b) > maxBodySize {
		b = b[:maxBodySize]
	}
	return secretRe.ReplaceAllString(string(b), `$1"***"`)
}

func (a *ProviderAuditor) Describe(ch chan<- *prometheus.Desc) {
	a.mConvertLen.Describe(ch)
	a.mInsertLen.Describe(ch)
	a.mDropped.Describe(ch)
	a.mInsertSize.Describe(ch)
	a.mInsertDuration.Describe(ch)
}

func (a *ProviderAuditor) Collect(ch chan<- prometheus.Metric) {
	a.mConvertLen.Set(float64(len(a.toConvert)))
	a.mInsertLen.Set(float64(len(a.toInsert)))

	a.mConvertLen.Collect(ch)
	a.mInsertLen.Collect(ch)
	a.mDropped.Collect(ch)
	a.mInsertSize.Collect(ch)
	a.mInsertDuration.Collect(ch)
}

// check interfaces
var (
	_ prometheus.Collector = (*ProviderAuditor)(nil)
	_ provider.Auditor     = (*ProviderAuditor)(nil)
	_ Inserter             = (*bigquery.Inserter)(nil)
)
