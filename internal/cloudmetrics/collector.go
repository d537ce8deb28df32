package cloudmetrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Collector derives billing telemetry gauges from the database on each
// push cycle. Nothing here sits on the request path.
type Collector struct {
	db  *gorm.DB
	log *zap.Logger

	tenants         prometheus.Gauge
	accounts        prometheus.Gauge
	overdueAccounts *prometheus.GaugeVec
	unpaidInvoices  prometheus.Gauge
	queueBacklog    *prometheus.GaugeVec
}

func NewCollector(registry *prometheus.Registry, db *gorm.DB, log *zap.Logger) *Collector {
	c := &Collector{
		db:  db,
		log: log.Named("telemetry"),
		tenants: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "duno_tenants",
			Help: "Number of tenants.",
		}),
		accounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "duno_accounts",
			Help: "Number of customer accounts.",
		}),
		overdueAccounts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "duno_overdue_accounts",
			Help: "Accounts currently in each overdue state.",
		}, []string{"state"}),
		unpaidInvoices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "duno_unpaid_invoices",
			Help: "Committed invoices carrying a balance.",
		}),
		queueBacklog: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "duno_queue_backlog",
			Help: "Available notification queue entries per queue.",
		}, []string{"queue"}),
	}

	registry.MustRegister(c.tenants, c.accounts, c.overdueAccounts, c.unpaidInvoices, c.queueBacklog)
	return c
}

// Collect refreshes every gauge. Individual query failures are logged and
// skipped so a partial snapshot still goes out.
func (c *Collector) Collect(ctx context.Context) {
	c.setCount(ctx, c.tenants, `SELECT COUNT(*) FROM tenants`)
	c.setCount(ctx, c.accounts, `SELECT COUNT(*) FROM accounts`)
	c.setCount(ctx, c.unpaidInvoices, `SELECT COUNT(*) FROM invoices WHERE status = 'COMMITTED' AND balance > 0`)
	c.collectOverdueStates(ctx)
	c.collectQueueBacklog(ctx)
}

func (c *Collector) setCount(ctx context.Context, gauge prometheus.Gauge, query string) {
	var count int64
	if err := c.db.WithContext(ctx).Raw(query).Scan(&count).Error; err != nil {
		c.log.Warn("telemetry count failed", zap.Error(err))
		return
	}
	gauge.Set(float64(count))
}

func (c *Collector) collectOverdueStates(ctx context.Context) {
	var rows []struct {
		StateName string `gorm:"column:state_name"`
		Count     int64  `gorm:"column:count"`
	}
	err := c.db.WithContext(ctx).Raw(
		`SELECT bs.state_name, COUNT(*) AS count
		 FROM blocking_states bs
		 WHERE bs.service = 'overdue-service'
		   AND bs.blockable_type = 'ACCOUNT'
		   AND NOT EXISTS (
		     SELECT 1 FROM blocking_states newer
		     WHERE newer.org_id = bs.org_id
		       AND newer.blockable_id = bs.blockable_id
		       AND newer.service = bs.service
		       AND newer.id > bs.id
		   )
		 GROUP BY bs.state_name`,
	).Scan(&rows).Error
	if err != nil {
		c.log.Warn("telemetry overdue states failed", zap.Error(err))
		return
	}

	c.overdueAccounts.Reset()
	for _, row := range rows {
		c.overdueAccounts.WithLabelValues(row.StateName).Set(float64(row.Count))
	}
}

func (c *Collector) collectQueueBacklog(ctx context.Context) {
	var rows []struct {
		QueueName string `gorm:"column:queue_name"`
		Count     int64  `gorm:"column:count"`
	}
	err := c.db.WithContext(ctx).Raw(
		`SELECT queue_name, COUNT(*) AS count
		 FROM notifications
		 WHERE processing_state = 'AVAILABLE'
		 GROUP BY queue_name`,
	).Scan(&rows).Error
	if err != nil {
		c.log.Warn("telemetry queue backlog failed", zap.Error(err))
		return
	}

	c.queueBacklog.Reset()
	for _, row := range rows {
		c.queueBacklog.WithLabelValues(row.QueueName).Set(float64(row.Count))
	}
}
