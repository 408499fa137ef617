// Package stream provides the DynamoDB Streams handler that feeds the change
// token chain from the Members table.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/Kapral67/FamilyDirectory-sub001/chain"
)

// Stream event names.
const (
	EventInsert = "INSERT"
	EventModify = "MODIFY"
	EventRemove = "REMOVE"
)

// Appender records changed members. *chain.Chain satisfies it.
type Appender interface {
	Append(ctx context.Context, members []uuid.UUID) (uuid.UUID, error)
}

// Handler turns Members table stream batches into change tokens.
type Handler struct {
	chain  Appender
	logger *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(a Appender, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		chain:  a,
		logger: logger,
	}
}

// HandleMemberChanges appends one change token listing every member touched
// by the batch. This function is designed to be used as an AWS Lambda handler.
// An append failure is returned so the batch is redelivered; appending the
// same members twice only costs a client a redundant refresh.
func (h *Handler) HandleMemberChanges(ctx context.Context, event events.DynamoDBEvent) error {
	seen := make(map[uuid.UUID]bool)
	var changed []uuid.UUID
	for _, record := range event.Records {
		id, ok, err := h.processRecord(record)
		if err != nil {
			// A malformed record would otherwise block the shard forever.
			h.logger.Warn("skipping stream record",
				"eventID", record.EventID,
				"error", err,
			)
			continue
		}
		if ok && !seen[id] {
			seen[id] = true
			changed = append(changed, id)
		}
	}

	if len(changed) == 0 {
		return nil
	}

	token, err := h.chain.Append(ctx, changed)
	if errors.Is(err, chain.ErrNoMembers) {
		return nil
	}
	if err != nil {
		h.logger.Error("failed to append change token",
			"records", len(event.Records),
			"members", len(changed),
			"error", err,
		)
		return err // Will retry, eventually DLQ
	}

	h.logger.Info("change token appended from stream",
		"token", token,
		"records", len(event.Records),
		"members", len(changed),
	)
	return nil
}

// processRecord returns the member a record changed, and false when the
// record carries no visible change.
func (h *Handler) processRecord(record events.DynamoDBEventRecord) (uuid.UUID, bool, error) {
	switch record.EventName {
	case EventInsert, EventRemove:
	case EventModify:
		// Every engine write bumps version; an unchanged version is a no-op rewrite.
		oldVersion := getNumberAttr(record.Change.OldImage, "version")
		newVersion := getNumberAttr(record.Change.NewImage, "version")
		if oldVersion != 0 && oldVersion == newVersion {
			return uuid.Nil, false, nil
		}
	default:
		return uuid.Nil, false, nil
	}

	raw := getStringAttr(record.Change.Keys, "id")
	if raw == "" {
		raw = getStringAttr(record.Change.NewImage, "id")
	}
	if raw == "" {
		raw = getStringAttr(record.Change.OldImage, "id")
	}
	if raw == "" {
		return uuid.Nil, false, fmt.Errorf("%s record has no id", record.EventName)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("%s record id %q: %w", record.EventName, raw, err)
	}
	return id, true, nil
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}
