// Package settlement is the value-transfer boundary of the engine. The engine
// drains a ledger balance first and then hands the payout instruction to a
// channel; what happens on the actual payment rail is out of scope.
package settlement

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gearrent/crypto"
	"gearrent/storage"
)

var payoutKeyPrefix = []byte("settlement/payout/")

// Instruction is one recorded payout order.
type Instruction struct {
	ID        string `json:"id"`
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
	CreatedAt int64  `json:"createdAt"`
}

// Journal durably appends payout instructions to a key-value store and logs
// them. A downstream processor (or an operator) drains the journal onto the
// real payment rail; the engine's responsibility ends once the instruction is
// recorded.
type Journal struct {
	db     storage.Database
	logger *slog.Logger
	nowFn  func() time.Time
}

// NewJournal creates a journal over the given database. A nil logger falls
// back to slog's default.
func NewJournal(db storage.Database, logger *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("settlement: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{db: db, logger: logger, nowFn: time.Now}, nil
}

// SetNowFunc overrides the timestamp source. Intended for tests.
func (j *Journal) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	j.nowFn = now
}

// Pay records the payout instruction. The write must succeed for the
// withdrawal to commit; on error the engine restores the drained balance.
func (j *Journal) Pay(recipient crypto.Address, amount uint64) error {
	if recipient.IsZero() {
		return fmt.Errorf("settlement: recipient required")
	}
	inst := Instruction{
		ID:        uuid.NewString(),
		Recipient: recipient.String(),
		Amount:    amount,
		CreatedAt: j.nowFn().Unix(),
	}
	encoded, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("settlement: encode instruction: %w", err)
	}
	key := append(append([]byte(nil), payoutKeyPrefix...), inst.ID...)
	if err := j.db.Put(key, encoded); err != nil {
		return fmt.Errorf("settlement: journal append: %w", err)
	}
	j.logger.Info("payout instruction recorded",
		slog.String("id", inst.ID),
		slog.String("recipient", inst.Recipient),
		slog.Uint64("amount", amount),
	)
	return nil
}

// Instructions returns every recorded payout order, oldest key first.
func (j *Journal) Instructions() ([]Instruction, error) {
	var out []Instruction
	err := j.db.IteratePrefix(payoutKeyPrefix, func(_, value []byte) error {
		var inst Instruction
		if err := json.Unmarshal(value, &inst); err != nil {
			return fmt.Errorf("settlement: corrupt instruction: %w", err)
		}
		out = append(out, inst)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
