package ingest

import (
	"context"
	"errors"
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/kk32340/SampleMLCode/engine/domain"
	"github.com/kk32340/SampleMLCode/pkg/natsutil"
)

const (
	// IngestSubject is the NATS subject for incoming documents.
	IngestSubject = "rag.ingest"
	// DLQSubject is the dead letter queue subject for failed messages.
	DLQSubject = "rag.ingest.dlq"
	// MaxRetries before sending to DLQ.
	MaxRetries = 3
	// RetryHeader carries the number of failed attempts so far.
	RetryHeader = "X-Retry-Count"
)

// DLQMessage is published to the DLQ on repeated or permanent failure.
type DLQMessage struct {
	Document domain.Document `json:"document"`
	Error    string          `json:"error"`
	Retries  int             `json:"retries"`
}

// ConsumerHooks lets callers observe consumer outcomes, e.g. for metrics.
type ConsumerHooks struct {
	OnStored func(Stored)
	OnFailed func(docID string, err error, dlq bool)
}

// StartConsumer subscribes to IngestSubject and runs each document through
// the ingestion pipeline. Failures are republished with an incremented
// retry count; invalid documents and documents that failed MaxRetries times
// go to DLQSubject.
func StartConsumer(nc *nats.Conn, deps Deps, hooks ConsumerHooks) (*nats.Subscription, error) {
	deps = deps.withDefaults()
	pipeline := NewPipeline(deps)
	log := deps.Logger

	return natsutil.SubscribeMsg(nc, IngestSubject, func(ctx context.Context, msg *nats.Msg, doc domain.Document) {
		retries := 0
		if msg.Header != nil {
			if v, err := strconv.Atoi(msg.Header.Get(RetryHeader)); err == nil {
				retries = v
			}
		}

		result := pipeline(ctx, doc)
		if result.IsOk() {
			stored, _ := result.Unwrap()
			log.Info("ingest: success", "doc_id", stored.DocID, "chunks", stored.Chunks)
			if hooks.OnStored != nil {
				hooks.OnStored(stored)
			}
			ack(msg)
			return
		}

		pipeErr := result.Error()
		retries++
		permanent := errors.Is(pipeErr, domain.ErrInvalidArgument) || errors.Is(pipeErr, domain.ErrDimensionMismatch)
		log.Error("ingest: pipeline failed",
			"err", pipeErr,
			"doc_id", doc.ID,
			"retry", retries,
			"permanent", permanent,
		)

		toDLQ := permanent || retries >= MaxRetries
		if toDLQ {
			dlq := DLQMessage{Document: doc, Error: pipeErr.Error(), Retries: retries}
			if err := natsutil.Publish(ctx, nc, DLQSubject, dlq); err != nil {
				log.Error("ingest: DLQ publish failed", "err", err)
			}
		} else {
			hdr := nats.Header{}
			hdr.Set(RetryHeader, strconv.Itoa(retries))
			retry, err := natsutil.NewMsg(ctx, IngestSubject, doc, hdr)
			if err == nil {
				err = nc.PublishMsg(retry)
			}
			if err != nil {
				log.Error("ingest: retry publish failed", "err", err)
			}
		}
		if hooks.OnFailed != nil {
			hooks.OnFailed(doc.ID, pipeErr, toDLQ)
		}
		ack(msg)
	}, func(_ *nats.Msg, err error) {
		log.Error("ingest: unmarshal failed", "err", err)
	})
}

// ack acknowledges JetStream deliveries; core NATS messages need nothing.
func ack(msg *nats.Msg) {
	if msg.Reply != "" {
		_ = msg.Ack()
	}
}
