package pool

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// statsSink receives pressure-band transition events for optional
// persistence. Kept as a narrow interface so Pool itself never imports
// bbolt directly — only this file does.
type statsSink interface {
	recordPressure(pressure int, band Band)
}

var statsBucket = []byte("pool_pressure_history")

// boltStatsSink appends one JSON record per pressure-band transition to a
// bbolt database, used by cmd/mediacore-probe's --stats-db flag to review
// pressure history after a run. Not on any decode hot path: Pool.SetPressure
// only calls this on a band transition, which is rare relative to
// Acquire/Release traffic.
type boltStatsSink struct {
	db *bbolt.DB
}

type pressureRecord struct {
	Time     time.Time `json:"time"`
	Pressure int       `json:"pressure"`
	Band     string    `json:"band"`
}

func (s *boltStatsSink) recordPressure(pressure int, band Band) {
	rec := pressureRecord{Time: time.Now(), Pressure: pressure, Band: band.String()}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(statsBucket)
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put([]byte(fmt.Sprintf("%020d", seq)), data)
	})
}

// WithStatsDB opens (creating if necessary) a bbolt database at path and
// wires it as the pool's pressure-history sink. Disabled by default — no
// component needs pressure persistence on the decode hot path.
func WithStatsDB(path string) (func(*Pool), func() error, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, nil, fmt.Errorf("pool.WithStatsDB: %w", err)
	}
	apply := func(p *Pool) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.stats = &boltStatsSink{db: db}
	}
	return apply, db.Close, nil
}
