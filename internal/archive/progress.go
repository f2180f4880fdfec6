package archive

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

const progressInterval = 5 * time.Second

// progress logs download progress at most once per interval.
type progress struct {
	key    string
	total  int64
	read   int64
	last   time.Time
	clock  clockwork.Clock
	logger *slog.Logger
	bytes  prometheus.Counter
}

func newProgress(key string, total int64, clock clockwork.Clock, logger *slog.Logger, bytes prometheus.Counter) *progress {
	return &progress{
		key:    key,
		total:  total,
		last:   clock.Now(),
		clock:  clock,
		logger: logger,
		bytes:  bytes,
	}
}

func (p *progress) add(n int) {
	p.read += int64(n)
	p.bytes.Add(float64(n))

	now := p.clock.Now()
	if now.Sub(p.last) < progressInterval {
		return
	}
	p.last = now
	p.log("archive downloading")
}

func (p *progress) done() {
	p.log("archive downloaded")
}

func (p *progress) log(msg string) {
	attrs := []any{"key", p.key, "bytes", p.read}
	if p.total > 0 {
		attrs = append(attrs, "total", p.total, "percent", p.read*100/p.total)
	}
	p.logger.Info(msg, attrs...)
}
