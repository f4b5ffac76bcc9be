// Package addrpool holds the egress source addresses a generation run
// rotates through.
package addrpool

import (
	"bufio"
	"bytes"
	"math/rand/v2"
	"os"
	"strings"

	"go.uber.org/zap"

	"fluxrelay/core"
)

// None is the sentinel address meaning "use the default route".
const None = core.DefaultRoute

// Pool is the process-wide address list. It is read-only after construction,
// so concurrent runs can take snapshots without locking.
type Pool struct {
	addrs []string
}

// Load reads a newline-delimited address file. Lines are trimmed and blank
// lines dropped, then the list is shuffled once.
//
// Load never fails: a missing or unreadable file is logged and yields an
// empty pool, which runs on the default route.
func Load(path string, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("address list file not found", zap.String("path", path))
		} else {
			logger.Warn("failed to read address list file",
				zap.String("path", path),
				zap.Error(err))
		}
		logger.Error("no source addresses loaded; requests will use the default route only")
		return &Pool{}
	}

	addrs := parse(data)
	if len(addrs) == 0 {
		logger.Error("address list is empty; requests will use the default route only",
			zap.String("path", path))
		return &Pool{}
	}

	rand.Shuffle(len(addrs), func(i, j int) {
		addrs[i], addrs[j] = addrs[j], addrs[i]
	})

	logger.Info("loaded source addresses",
		zap.String("path", path),
		zap.Int("count", len(addrs)))

	return &Pool{addrs: addrs}
}

func parse(data []byte) []string {
	var addrs []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		addrs = append(addrs, line)
	}
	return addrs
}

// New builds a pool from addrs in the given order.
func New(addrs []string) *Pool {
	cleaned := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a = strings.TrimSpace(a); a != "" {
			cleaned = append(cleaned, a)
		}
	}
	return &Pool{addrs: cleaned}
}

// Snapshot returns a fresh copy of the list for one run. An empty pool
// returns a single None entry.
func (p *Pool) Snapshot() []string {
	if p == nil || len(p.addrs) == 0 {
		return []string{None}
	}
	out := make([]string, len(p.addrs))
	copy(out, p.addrs)
	return out
}

// Len returns the number of configured addresses (0 for an empty pool).
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.addrs)
}

// Contains reports whether addr is in the pool.
func (p *Pool) Contains(addr string) bool {
	if p == nil {
		return false
	}
	for _, a := range p.addrs {
		if a == addr {
			return true
		}
	}
	return false
}
