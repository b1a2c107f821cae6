package queue

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lucidicai/lucidic-go/internal/diagnostics"
	"github.com/lucidicai/lucidic-go/internal/logging"
	"github.com/lucidicai/lucidic-go/internal/sdkerrors"
	"github.com/lucidicai/lucidic-go/pkg/luciditypes"
	"github.com/oklog/ulid/v2"
)

const maxTotalRetries = 3

// dispatchBatch partitions a batch into dependency-ordered groups per
// spec.md §4.5.5 and dispatches each group concurrently before forming the
// next, so a child is not transmitted before a dispatch attempt has
// succeeded for its parent — except in a final orphaned group, which is
// sent without that check.
func (q *Queue) dispatchBatch(batch []*luciditypes.Event) {
	// batchID is an internal correlation id for this batch's diagnostics
	// and log lines only; it never reaches the wire envelope.
	batchID := ulid.Make().String()
	logging.Debug().Str("batch_id", batchID).Int("size", len(batch)).Msg("dispatching batch")
	q.bus.Publish(diagnostics.Event{Kind: diagnostics.KindBatchDispatched, Data: batchID})

	remaining := batch

	for len(remaining) > 0 {
		group, rest := q.nextGroup(remaining)

		if len(group) == 0 {
			// No item's parent is in S — orphaned or cyclic references.
			// Never block forever: send everything left as one final
			// group (spec.md §4.5.5).
			q.bus.Publish(diagnostics.Event{Kind: diagnostics.KindGroupOrphaned, Data: len(remaining)})
			group = remaining
			rest = nil
		}

		q.dispatchGroup(group)
		remaining = rest
	}
}

// nextGroup splits items into those whose parent is absent or already
// delivered (the group to dispatch now) and the rest.
func (q *Queue) nextGroup(items []*luciditypes.Event) (group, rest []*luciditypes.Event) {
	q.deliveredMu.Lock()
	defer q.deliveredMu.Unlock()

	for _, item := range items {
		if item.ClientParentEventID == "" || q.delivered[item.ClientParentEventID] {
			group = append(group, item)
		} else {
			rest = append(rest, item)
		}
	}
	return group, rest
}

// dispatchGroup dispatches every item in the group concurrently via the
// worker-pool semaphore, then waits for all of them before returning so the
// caller can safely form the next group against an up-to-date delivered set.
func (q *Queue) dispatchGroup(group []*luciditypes.Event) {
	var wg sync.WaitGroup
	for _, item := range group {
		item := item
		wg.Add(1)
		q.sem <- struct{}{}
		q.addInFlight(1)

		go func() {
			defer wg.Done()
			defer func() { <-q.sem }()
			defer q.addInFlight(-1)

			q.dispatchOne(item)
		}()
	}
	wg.Wait()
}

type dispatchOutcome int

const (
	outcomeDelivered dispatchOutcome = iota
	outcomeDeferred
	outcomeDropped
)

const maxDeferCount = 5

// dispatchOne implements spec.md §4.5.6.
func (q *Queue) dispatchOne(item *luciditypes.Event) dispatchOutcome {
	q.deliveredMu.Lock()
	parentDelivered := item.ClientParentEventID == "" || q.delivered[item.ClientParentEventID]
	q.deliveredMu.Unlock()

	if !parentDelivered && item.DeferCount < maxDeferCount {
		item.DeferCount++
		q.deferredMu.Lock()
		q.deferred = append(q.deferred, item)
		q.deferredMu.Unlock()
		q.bus.Publish(diagnostics.Event{Kind: diagnostics.KindItemDeferred, Data: item.ClientEventID})
		return outcomeDeferred
	}

	envelope, fullPayload, err := q.buildEnvelope(item)
	if err != nil {
		q.fail(item, err)
		return outcomeDropped
	}

	ctx := context.Background()
	if err := q.send(ctx, item, envelope, fullPayload); err != nil {
		return q.handleDispatchFailure(item, err)
	}

	q.deliveredMu.Lock()
	q.delivered[item.ClientEventID] = true
	q.deliveredMu.Unlock()
	return outcomeDelivered
}

func (q *Queue) send(ctx context.Context, item *luciditypes.Event, envelope map[string]any, fullPayload []byte) error {
	var lastErr error

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.Multiplier = 2
	b.RandomizationFactor = 0
	bo := backoff.WithMaxRetries(b, 2) // 3 total attempts

	attempt := func() error {
		respBody, err := q.client.Do(ctx, "POST", "events", envelope)
		if err != nil {
			lastErr = err
			return err
		}

		if item.NeedsBlob {
			blobURL, ok := extractBlobURL(respBody)
			if !ok {
				lastErr = &sdkerrors.DispatchError{ClientEventID: item.ClientEventID, Cause: errNoBlobURL}
				return lastErr
			}
			gz, gzErr := gzipBytes(fullPayload)
			if gzErr != nil {
				lastErr = gzErr
				return gzErr
			}
			if putErr := q.client.PutBlob(ctx, blobURL, gz); putErr != nil {
				lastErr = putErr
				return putErr
			}
			q.bus.Publish(diagnostics.Event{Kind: diagnostics.KindBlobUploaded, Data: item.ClientEventID})
		}
		return nil
	}

	if err := backoff.Retry(attempt, bo); err != nil {
		return lastErr
	}
	return nil
}

var errNoBlobURL = &sdkerrors.OperationalError{StatusCode: 0, Body: "response missing blob_url for a needs_blob event"}

func (q *Queue) handleDispatchFailure(item *luciditypes.Event, err error) dispatchOutcome {
	q.bus.Publish(diagnostics.Event{Kind: diagnostics.KindDispatchFailed, Data: item.ClientEventID})

	if item.RetryCount < maxTotalRetries {
		item.RetryCount++
		logging.Error().Str("client_event_id", item.ClientEventID).Err(err).Msg("dispatch failed, re-enqueuing for retry")
		q.Enqueue(item)
		return outcomeDropped
	}

	logging.Error().Str("client_event_id", item.ClientEventID).Err(err).Msg("dispatch failed, retries exhausted, dropping")
	return outcomeDropped
}

func (q *Queue) fail(item *luciditypes.Event, err error) {
	q.bus.Publish(diagnostics.Event{Kind: diagnostics.KindDispatchFailed, Data: item.ClientEventID})
	logging.Error().Str("client_event_id", item.ClientEventID).Err(err).Msg("failed to build event envelope")
}

// buildEnvelope serializes the event compactly. If the serialized payload
// exceeds the blob threshold, it marks the item for blob offload and
// substitutes a size-adaptive preview in the inline envelope (spec.md
// §4.5.6 step 3, §4.5.7), returning both the (possibly preview-substituted)
// envelope and the original full payload bytes for the subsequent PUT.
func (q *Queue) buildEnvelope(item *luciditypes.Event) (envelope map[string]any, fullPayload []byte, err error) {
	payloadMap := payloadToMap(item.Payload)
	fullPayload, err = json.Marshal(payloadMap)
	if err != nil {
		return nil, nil, err
	}

	inlinePayload := payloadMap
	if len(fullPayload) > q.cfg.BlobThresholdBytes {
		item.NeedsBlob = true
		inlinePayload = buildPreview(item.Kind, payloadMap)
		item.Preview = inlinePayload
	}

	envelope = map[string]any{
		"client_event_id":        item.ClientEventID,
		"session_id":             item.SessionID,
		"client_parent_event_id": item.ClientParentEventID,
		"type":                   string(item.Kind),
		"occurred_at":            item.OccurredAt.Format(time.RFC3339),
		"duration":               item.Duration,
		"tags":                   item.Tags,
		"metadata":               item.Metadata,
		"payload":                inlinePayload,
		"needs_blob":             item.NeedsBlob,
	}
	return envelope, fullPayload, nil
}

func extractBlobURL(body json.RawMessage) (string, bool) {
	var resp struct {
		BlobURL string `json:"blob_url"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false
	}
	if resp.BlobURL == "" {
		return "", false
	}
	return resp.BlobURL, true
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
