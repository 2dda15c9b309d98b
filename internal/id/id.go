package id

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const statementWord = " Statement "

// New returns a fresh record ID.
func New() string {
	return uuid.NewString()
}

// FormatStatementName returns a statement name like "BNK1 Statement 2016/01/00001".
func FormatStatementName(journalCode string, date time.Time, seq int) string {
	return fmt.Sprintf("%s%s%04d/%02d/%05d", journalCode, statementWord, date.Year(), int(date.Month()), seq)
}

// ParseStatementName parses "BNK1 Statement 2016/01/00001" into its parts.
func ParseStatementName(name string) (code string, year, month, seq int, err error) {
	idx := strings.LastIndex(name, statementWord)
	if idx <= 0 {
		return "", 0, 0, 0, fmt.Errorf("invalid statement name format: %q", name)
	}
	code = name[:idx]

	parts := strings.Split(name[idx+len(statementWord):], "/")
	if len(parts) != 3 {
		return "", 0, 0, 0, fmt.Errorf("invalid statement name format: %q", name)
	}

	year, err = strconv.Atoi(parts[0])
	if err != nil {
		return "", 0, 0, 0, fmt.Errorf("invalid year in statement name %q: %w", name, err)
	}

	month, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, 0, 0, fmt.Errorf("invalid month in statement name %q: %w", name, err)
	}

	seq, err = strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, 0, 0, fmt.Errorf("invalid sequence in statement name %q: %w", name, err)
	}

	return code, year, month, seq, nil
}

// NextSeq returns the next sequence number for code in the month of date,
// given the names already used.
func NextSeq(names []string, journalCode string, date time.Time) int {
	maxSeq := 0
	for _, name := range names {
		code, year, month, seq, err := ParseStatementName(name)
		if err != nil || code != journalCode {
			continue
		}
		if year != date.Year() || month != int(date.Month()) {
			continue
		}
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	return maxSeq + 1
}
