// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetsync

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/certasset/lib/asset"
	"github.com/bureau-foundation/certasset/lib/assetclient"
	"github.com/bureau-foundation/certasset/lib/assetstore"
	"github.com/bureau-foundation/certasset/lib/clock"
	"github.com/bureau-foundation/certasset/lib/service"
	"github.com/bureau-foundation/certasset/lib/testutil"
)

var _ Store = (*assetclient.Client)(nil)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// stateStore adapts an in-process store to Store.
type stateStore struct {
	state *assetstore.State
}

func (s stateStore) List(ctx context.Context) ([]asset.AssetDetails, error) {
	return s.state.List(), nil
}

func (s stateStore) GetAssetProperties(ctx context.Context, key string) (asset.AssetProperties, error) {
	return s.state.GetAssetProperties(key)
}

func (s stateStore) CreateBatch(ctx context.Context) (asset.BatchID, error) {
	return s.state.CreateBatch()
}

func (s stateStore) CreateChunk(ctx context.Context, batchID asset.BatchID, content []byte) (asset.ChunkID, error) {
	return s.state.CreateChunk(batchID, content)
}

func (s stateStore) CommitBatch(ctx context.Context, batchID asset.BatchID, operations []asset.BatchOperation) error {
	return s.state.CommitBatch(batchID, operations)
}

func (s stateStore) ProposeCommitBatch(ctx context.Context, batchID asset.BatchID, operations []asset.BatchOperation) error {
	return s.state.ProposeCommitBatch(batchID, operations)
}

func (s stateStore) ComputeEvidence(ctx context.Context, batchID asset.BatchID, maxIterations uint16) (*asset.Hash, error) {
	return s.state.ComputeEvidence(batchID, maxIterations)
}

func (s stateStore) CommitProposedBatch(ctx context.Context, batchID asset.BatchID, evidence asset.Hash) error {
	return s.state.CommitProposedBatch(batchID, evidence)
}

func newState(t *testing.T, configure func(*assetstore.Config)) (*assetstore.State, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(testEpoch)
	config := assetstore.Config{Clock: fake, Logger: testLogger()}
	if configure != nil {
		configure(&config)
	}
	state, err := assetstore.New(config)
	if err != nil {
		t.Fatalf("assetstore.New: %v", err)
	}
	return state, fake
}

func newSyncer(t *testing.T, store Store, fake *clock.FakeClock, configure func(*Config)) *Syncer {
	t.Helper()
	config := Config{
		Store:     store,
		Clock:     fake,
		Logger:    testLogger(),
		Encodings: compressed,
	}
	if configure != nil {
		configure(&config)
	}
	syncer, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return syncer
}

// remoteBody reassembles one stored encoding from its chunks.
func remoteBody(t *testing.T, state *assetstore.State, key string, encoding asset.ContentEncoding) []byte {
	t.Helper()
	encoded, err := state.Get(key, []asset.ContentEncoding{encoding})
	if err != nil {
		t.Fatalf("Get(%s, %s): %v", key, encoding, err)
	}
	body := slices.Clone(encoded.Content)
	for index := uint64(1); uint64(len(body)) < encoded.TotalLength; index++ {
		chunk, err := state.GetChunk(key, encoding, index, encoded.SHA256)
		if err != nil {
			t.Fatalf("GetChunk(%s, %s, %d): %v", key, encoding, index, err)
		}
		body = append(body, chunk...)
	}
	return body
}

func remoteKeys(state *assetstore.State) []string {
	var keys []string
	for _, details := range state.List() {
		keys = append(keys, details.Key)
	}
	slices.Sort(keys)
	return keys
}

func kindsOf(operations []asset.BatchOperation) map[string]asset.OperationKind {
	kinds := make(map[string]asset.OperationKind)
	for _, operation := range operations {
		kinds[operation.Key()+" "+operation.Kind().String()] = operation.Kind()
	}
	return kinds
}

func TestSyncDirect(t *testing.T) {
	css := strings.Repeat("body { margin: 0; }\n", 50)
	root := writeTree(t, map[string]string{
		"index.html":  "<h1>hi</h1>",
		"css/app.css": css,
	})
	state, fake := newState(t, nil)
	syncer := newSyncer(t, stateStore{state}, fake, nil)

	result, err := syncer.Sync(t.Context(), root)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !result.Committed || result.BatchID == 0 || result.Evidence != nil {
		t.Errorf("result = %+v, want a direct commit", result)
	}
	if got := remoteKeys(state); !slices.Equal(got, []string{"/css/app.css", "/index.html"}) {
		t.Fatalf("remote keys = %v", got)
	}
	if got := remoteBody(t, state, "/index.html", asset.Identity); string(got) != "<h1>hi</h1>" {
		t.Errorf("/index.html = %q", got)
	}
	if got := decode(t, remoteBody(t, state, "/css/app.css", asset.Gzip), asset.Gzip); string(got) != css {
		t.Error("/css/app.css gzip encoding does not decode to the file")
	}
	if got := decode(t, remoteBody(t, state, "/css/app.css", asset.Brotli), asset.Brotli); string(got) != css {
		t.Error("/css/app.css brotli encoding does not decode to the file")
	}

	batches, chunks, _ := state.StagingUsage()
	if batches != 0 || chunks != 0 {
		t.Errorf("staging after commit: %d batches, %d chunks", batches, chunks)
	}

	again, err := syncer.Sync(t.Context(), root)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if len(again.Plan.Operations) != 0 || again.BatchID != 0 {
		t.Errorf("second Sync = %d operations in batch %d, want nothing", len(again.Plan.Operations), again.BatchID)
	}
}

func TestSyncConverges(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt":  "a",
		"b.txt":  "b",
		"c.html": "<p>c</p>",
	})
	state, fake := newState(t, nil)
	syncer := newSyncer(t, stateStore{state}, fake, nil)
	if _, err := syncer.Sync(t.Context(), root); err != nil {
		t.Fatalf("first Sync: %v", err)
	}

	writeFile(t, root, "a.txt", "a, edited")
	if err := os.Remove(filepath.Join(root, "b.txt")); err != nil {
		t.Fatal(err)
	}
	writeFile(t, root, "d.txt", "d")
	writeFile(t, root, RulesFileName, `[{"match": "c.html", "cache": {"max_age": 30}}]`)

	result, err := syncer.Sync(t.Context(), root)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	kinds := kindsOf(result.Plan.Operations)
	for _, want := range []string{
		"/b.txt DeleteAsset",
		"/d.txt CreateAsset",
		"/d.txt SetAssetContent",
		"/a.txt SetAssetContent",
		"/c.html SetAssetProperties",
	} {
		if _, ok := kinds[want]; !ok {
			t.Errorf("second pass is missing %s: %v", want, describe(result.Plan.Operations))
		}
	}
	if len(result.Plan.Operations) != 5 {
		t.Errorf("second pass = %s, want exactly five operations", describe(result.Plan.Operations))
	}

	if got := remoteKeys(state); !slices.Equal(got, []string{"/a.txt", "/c.html", "/d.txt"}) {
		t.Errorf("remote keys = %v", got)
	}
	if got := remoteBody(t, state, "/a.txt", asset.Identity); string(got) != "a, edited" {
		t.Errorf("/a.txt = %q", got)
	}
	properties, err := state.GetAssetProperties("/c.html")
	if err != nil {
		t.Fatalf("GetAssetProperties: %v", err)
	}
	if properties.MaxAge == nil || *properties.MaxAge != 30 {
		t.Errorf("/c.html max age = %v, want 30", properties.MaxAge)
	}

	third, err := syncer.Sync(t.Context(), root)
	if err != nil {
		t.Fatalf("third Sync: %v", err)
	}
	if len(third.Plan.Operations) != 0 {
		t.Errorf("third pass = %s, want nothing", describe(third.Plan.Operations))
	}
}

func TestSyncUploadsInChunks(t *testing.T) {
	content := bytes.Repeat([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, 10)
	root := writeTree(t, map[string]string{"blob.bin": string(content)})
	state, fake := newState(t, nil)

	var counter countingStore
	counter.Store = stateStore{state}
	syncer := newSyncer(t, &counter, fake, func(config *Config) {
		config.ChunkSize = 16
		config.Concurrency = 3
	})
	if _, err := syncer.Sync(t.Context(), root); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if got := counter.chunkCalls(); got != 7 {
		t.Errorf("uploaded %d chunks, want 7", got)
	}
	if got := remoteBody(t, state, "/blob.bin", asset.Identity); !bytes.Equal(got, content) {
		t.Errorf("reassembled content differs: %d bytes", len(got))
	}
}

func TestSyncByProposal(t *testing.T) {
	root := writeTree(t, map[string]string{"index.html": "<h1>proposed</h1>"})
	state, fake := newState(t, nil)
	syncer := newSyncer(t, stateStore{state}, fake, func(config *Config) {
		config.Mode = CommitProposal
		config.EvidenceIterations = 1
	})

	result, err := syncer.Sync(t.Context(), root)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !result.Committed || result.Evidence == nil {
		t.Fatalf("result = %+v, want a committed proposal with evidence", result)
	}
	want, err := result.Plan.Evidence()
	if err != nil {
		t.Fatalf("Evidence: %v", err)
	}
	if *result.Evidence != want {
		t.Error("result evidence differs from the plan's evidence")
	}
	if got := remoteBody(t, state, "/index.html", asset.Identity); string(got) != "<h1>proposed</h1>" {
		t.Errorf("/index.html = %q", got)
	}
}

func TestSyncProposeOnly(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "for review"})
	state, fake := newState(t, nil)
	syncer := newSyncer(t, stateStore{state}, fake, func(config *Config) {
		config.Mode = CommitProposeOnly
	})

	result, err := syncer.Sync(t.Context(), root)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if result.Committed || result.Evidence == nil || result.BatchID == 0 {
		t.Fatalf("result = %+v, want an uncommitted proposal", result)
	}
	if keys := remoteKeys(state); len(keys) != 0 {
		t.Fatalf("proposal was applied: %v", keys)
	}

	evidence, err := syncer.CheckProposal(t.Context(), root, result.BatchID)
	if err != nil {
		t.Fatalf("CheckProposal: %v", err)
	}
	if evidence != *result.Evidence {
		t.Error("CheckProposal evidence differs from the proposing run's")
	}

	writeFile(t, root, "a.txt", "edited after proposing")
	_, err = syncer.CheckProposal(t.Context(), root, result.BatchID)
	if !errors.Is(err, asset.ErrEvidenceMismatch) {
		t.Errorf("CheckProposal after an edit: %v, want evidence mismatch", err)
	}

	if err := state.CommitProposedBatch(result.BatchID, evidence); err != nil {
		t.Fatalf("CommitProposedBatch: %v", err)
	}
	if got := remoteBody(t, state, "/a.txt", asset.Identity); string(got) != "for review" {
		t.Errorf("/a.txt = %q", got)
	}
}

// tamperingStore rewrites proposed operations on their way to the
// store and records whether a commit was attempted.
type tamperingStore struct {
	Store
	tamper func([]asset.BatchOperation) []asset.BatchOperation

	mu               sync.Mutex
	commitsAttempted int
}

func (s *tamperingStore) ProposeCommitBatch(ctx context.Context, batchID asset.BatchID, operations []asset.BatchOperation) error {
	return s.Store.ProposeCommitBatch(ctx, batchID, s.tamper(operations))
}

func (s *tamperingStore) CommitProposedBatch(ctx context.Context, batchID asset.BatchID, evidence asset.Hash) error {
	s.mu.Lock()
	s.commitsAttempted++
	s.mu.Unlock()
	return s.Store.CommitProposedBatch(ctx, batchID, evidence)
}

func TestSyncEvidenceMismatchNeverCommits(t *testing.T) {
	tests := []struct {
		name   string
		tamper func([]asset.BatchOperation) []asset.BatchOperation
	}{
		{
			name: "injected header",
			tamper: func(operations []asset.BatchOperation) []asset.BatchOperation {
				tampered := slices.Clone(operations)
				for i, operation := range tampered {
					if operation.CreateAsset != nil {
						create := *operation.CreateAsset
						create.Headers = map[string]string{"Content-Security-Policy": "none"}
						tampered[i].CreateAsset = &create
					}
				}
				return tampered
			},
		},
		{
			name: "dropped operation",
			tamper: func(operations []asset.BatchOperation) []asset.BatchOperation {
				return slices.DeleteFunc(slices.Clone(operations), func(operation asset.BatchOperation) bool {
					return operation.Key() == "/b.txt"
				})
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			root := writeTree(t, map[string]string{"a.txt": "a", "b.txt": "b"})
			state, fake := newState(t, nil)
			store := &tamperingStore{Store: stateStore{state}, tamper: test.tamper}
			syncer := newSyncer(t, store, fake, func(config *Config) {
				config.Mode = CommitProposal
			})

			result, err := syncer.Sync(t.Context(), root)
			if !errors.Is(err, asset.ErrEvidenceMismatch) {
				t.Fatalf("Sync: %v, want evidence mismatch", err)
			}
			if result == nil || result.Committed {
				t.Errorf("result = %+v, want an uncommitted batch", result)
			}
			if store.commitsAttempted != 0 {
				t.Errorf("commit_proposed_batch called %d times", store.commitsAttempted)
			}
			if keys := remoteKeys(state); len(keys) != 0 {
				t.Errorf("store changed: %v", keys)
			}
		})
	}
}

// countingStore counts chunk uploads and fails the first failures of
// them with err.
type countingStore struct {
	Store

	mu       sync.Mutex
	calls    int
	failures int
	err      error
}

func (s *countingStore) CreateChunk(ctx context.Context, batchID asset.BatchID, content []byte) (asset.ChunkID, error) {
	s.mu.Lock()
	s.calls++
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()
	if fail {
		return 0, s.err
	}
	return s.Store.CreateChunk(ctx, batchID, content)
}

func (s *countingStore) chunkCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type syncOutcome struct {
	result *Result
	err    error
}

func TestSyncRetriesTransportFailures(t *testing.T) {
	root := writeTree(t, map[string]string{"a.bin": "payload"})
	state, fake := newState(t, nil)
	store := &countingStore{
		Store:    stateStore{state},
		failures: 2,
		err:      errors.New("connection reset by peer"),
	}
	syncer := newSyncer(t, store, fake, func(config *Config) {
		config.RetryBackoff = time.Second
	})

	done := make(chan syncOutcome, 1)
	go func() {
		result, err := syncer.Sync(t.Context(), root)
		done <- syncOutcome{result, err}
	}()

	fake.WaitForTimers(1)
	fake.Advance(time.Second)
	fake.WaitForTimers(1)
	fake.Advance(2 * time.Second)

	outcome := testutil.RequireReceive(t, done, 5*time.Second, "sync after retries")
	if outcome.err != nil {
		t.Fatalf("Sync: %v", outcome.err)
	}
	if got := store.chunkCalls(); got != 3 {
		t.Errorf("chunk upload attempted %d times, want 3", got)
	}
	if got := remoteBody(t, state, "/a.bin", asset.Identity); string(got) != "payload" {
		t.Errorf("/a.bin = %q", got)
	}
}

func TestSyncGivesUpAfterRetryAttempts(t *testing.T) {
	root := writeTree(t, map[string]string{"a.bin": "payload"})
	state, fake := newState(t, nil)
	store := &countingStore{
		Store:    stateStore{state},
		failures: 10,
		err:      errors.New("connection refused"),
	}
	syncer := newSyncer(t, store, fake, func(config *Config) {
		config.RetryAttempts = 2
		config.RetryBackoff = time.Second
	})

	done := make(chan syncOutcome, 1)
	go func() {
		result, err := syncer.Sync(t.Context(), root)
		done <- syncOutcome{result, err}
	}()
	fake.WaitForTimers(1)
	fake.Advance(time.Second)

	outcome := testutil.RequireReceive(t, done, 5*time.Second, "sync giving up")
	if outcome.err == nil || !strings.Contains(outcome.err.Error(), "connection refused") {
		t.Fatalf("Sync: %v, want the transport error", outcome.err)
	}
	if got := store.chunkCalls(); got != 2 {
		t.Errorf("chunk upload attempted %d times, want 2", got)
	}
	if outcome.result == nil || outcome.result.BatchID == 0 || outcome.result.Committed {
		t.Errorf("result = %+v, want an abandoned batch", outcome.result)
	}
	if keys := remoteKeys(state); len(keys) != 0 {
		t.Errorf("store changed: %v", keys)
	}
}

func TestSyncDoesNotRetryStoreErrors(t *testing.T) {
	zero := uint64(0)
	root := writeTree(t, map[string]string{"a.bin": "payload"})
	state, fake := newState(t, func(config *assetstore.Config) {
		config.Limits = asset.Limits{MaxChunks: &zero}
	})
	store := &countingStore{Store: stateStore{state}}
	syncer := newSyncer(t, store, fake, nil)

	_, err := syncer.Sync(t.Context(), root)
	if asset.KindOf(err) != asset.KindResource {
		t.Fatalf("Sync: %v, want a resource error", err)
	}
	if got := store.chunkCalls(); got != 1 {
		t.Errorf("chunk upload attempted %d times, want 1", got)
	}
}

func TestSyncBadRulesOpenNoBatch(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt":       "a",
		RulesFileName: `[{"match": "*", "encodings": ["compress"]}]`,
	})
	state, fake := newState(t, nil)
	syncer := newSyncer(t, stateStore{state}, fake, nil)

	if _, err := syncer.Sync(t.Context(), root); err == nil {
		t.Fatal("Sync with invalid rules succeeded")
	}
	if batches, _, _ := state.StagingUsage(); batches != 0 {
		t.Errorf("%d batches opened", batches)
	}
}

func TestSyncSkipsUnreadableFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"index.html": "<h1>v1</h1>",
		"keep.txt":   "kept",
	})
	state, fake := newState(t, nil)
	syncer := newSyncer(t, stateStore{state}, fake, nil)
	if _, err := syncer.Sync(t.Context(), root); err != nil {
		t.Fatalf("initial Sync: %v", err)
	}

	writeFile(t, root, "index.html", "<h1>v2</h1>")
	descriptors, err := Scan(root, ScanOptions{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	for i := range descriptors {
		if descriptors[i].Key == "/keep.txt" {
			descriptors[i].SourcePath = filepath.Join(root, "vanished.txt")
		}
	}

	plan, err := syncer.plan(t.Context(), root, descriptors)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Failures) != 1 || plan.Failures[0].Key != "/keep.txt" || !errors.Is(plan.Failures[0], os.ErrNotExist) {
		t.Fatalf("failures = %v, want /keep.txt not found", plan.Failures)
	}
	for _, operation := range plan.Operations {
		if operation.Key() == "/keep.txt" {
			t.Errorf("plan touches the unreadable asset: %s", operation)
		}
	}
	if _, err := syncer.Apply(t.Context(), plan); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := remoteBody(t, state, "/index.html", asset.Identity); string(got) != "<h1>v2</h1>" {
		t.Errorf("/index.html = %q, want the readable file updated", got)
	}
	if got := remoteBody(t, state, "/keep.txt", asset.Identity); string(got) != "kept" {
		t.Errorf("/keep.txt = %q, want the stored copy kept", got)
	}
}

func TestSyncEmptyFile(t *testing.T) {
	root := writeTree(t, map[string]string{
		"index.html": "<h1>hi</h1>",
		"empty.txt":  "",
	})
	state, fake := newState(t, nil)
	syncer := newSyncer(t, stateStore{state}, fake, func(config *Config) {
		config.Mode = CommitProposal
	})

	result, err := syncer.Sync(t.Context(), root)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !result.Committed || result.Evidence == nil {
		t.Fatalf("result = %+v, want a committed proposal", result)
	}
	want, err := result.Plan.Evidence()
	if err != nil {
		t.Fatalf("Evidence: %v", err)
	}
	if *result.Evidence != want {
		t.Error("store evidence differs from the plan's evidence")
	}
	if got := remoteKeys(state); !slices.Equal(got, []string{"/empty.txt", "/index.html"}) {
		t.Fatalf("remote keys = %v", got)
	}
	for _, details := range state.List() {
		if details.Key != "/empty.txt" {
			continue
		}
		identity, ok := details.Encoding(asset.Identity)
		if !ok || identity.Length != 0 || identity.SHA256 != asset.SHA256(nil) {
			t.Errorf("/empty.txt details = %+v, want an empty identity encoding", details)
		}
	}
	if got := remoteBody(t, state, "/empty.txt", asset.Identity); len(got) != 0 {
		t.Errorf("/empty.txt = %q, want empty", got)
	}

	again, err := syncer.Sync(t.Context(), root)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if len(again.Plan.Operations) != 0 {
		t.Errorf("second pass = %s, want nothing", describe(again.Plan.Operations))
	}
}

func TestSyncOverSocket(t *testing.T) {
	state, fake := newState(t, nil)
	socketPath := filepath.Join(testutil.SocketDir(t), "store.sock")
	server := service.NewSocketServer(socketPath, testLogger())
	state.RegisterActions(server)
	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-serveDone
	})
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "store socket ready")

	root := writeTree(t, map[string]string{
		"index.html": strings.Repeat("<p>over the socket</p>", 40),
		"old.txt":    "old",
	})
	syncer := newSyncer(t, assetclient.New(socketPath), fake, func(config *Config) {
		config.Mode = CommitProposal
		config.ChunkSize = 100
	})
	if _, err := syncer.Sync(t.Context(), root); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	if err := os.Remove(filepath.Join(root, "old.txt")); err != nil {
		t.Fatal(err)
	}
	result, err := syncer.Sync(t.Context(), root)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if len(result.Plan.Operations) != 1 || result.Plan.Operations[0].DeleteAsset == nil {
		t.Errorf("second pass = %s, want the deletion only", describe(result.Plan.Operations))
	}
	if got := remoteKeys(state); !slices.Equal(got, []string{"/index.html"}) {
		t.Errorf("remote keys = %v", got)
	}
}
