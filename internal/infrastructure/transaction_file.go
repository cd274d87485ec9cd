package infrastructure

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"affrollup/internal/domain"
)

// LoadTransactionFile reads a JSON batch from path, or from stdin when path is "-"
func LoadTransactionFile(path string) ([]domain.TransactionRecord, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read transactions file: %w", err)
	}
	return DecodeTransactions(raw)
}

// DecodeTransactions accepts a JSON array of records or the feed envelope {"transactions": [...]}
func DecodeTransactions(raw []byte) ([]domain.TransactionRecord, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var records []domain.TransactionRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("parse transactions: %w", err)
		}
		return records, nil
	}

	var page transactionPage
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, fmt.Errorf("parse transactions: %w", err)
	}
	return page.Transactions, nil
}
