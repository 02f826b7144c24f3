// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assetsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/bureau-foundation/certasset/lib/asset"
	"github.com/bureau-foundation/certasset/lib/clock"
)

// CommitMode selects how a sync run commits its batch.
type CommitMode int

const (
	// CommitDirect applies the batch with commit_batch.
	CommitDirect CommitMode = iota
	// CommitProposal proposes the batch, waits for the store's
	// evidence, and commits only if it equals the local evidence.
	CommitProposal
	// CommitProposeOnly proposes the batch and stops, leaving the
	// commit to whoever holds the evidence.
	CommitProposeOnly
)

func (m CommitMode) String() string {
	switch m {
	case CommitDirect:
		return "direct"
	case CommitProposal:
		return "proposal"
	case CommitProposeOnly:
		return "propose-only"
	default:
		return fmt.Sprintf("CommitMode(%d)", int(m))
	}
}

// ParseCommitMode is the inverse of String.
func ParseCommitMode(name string) (CommitMode, error) {
	switch name {
	case "direct":
		return CommitDirect, nil
	case "proposal":
		return CommitProposal, nil
	case "propose-only":
		return CommitProposeOnly, nil
	default:
		return 0, fmt.Errorf("unknown commit mode %q (want direct, proposal, or propose-only)", name)
	}
}

// Defaults applied by [New] to zero Config fields.
const (
	DefaultConcurrency        = 8
	DefaultRetryAttempts      = 3
	DefaultRetryBackoff       = 500 * time.Millisecond
	DefaultEvidenceIterations = 100
)

// Config configures a Syncer.
type Config struct {
	Store  Store
	Clock  clock.Clock
	Logger *slog.Logger

	// Encodings are produced, besides identity, for compressible
	// files that no rule assigns encodings to.
	Encodings []asset.ContentEncoding

	ChunkSize     int
	Concurrency   int
	RetryAttempts int
	RetryBackoff  time.Duration

	Mode CommitMode
	// EvidenceIterations bounds the work of each compute_evidence
	// call.
	EvidenceIterations uint16
}

// Syncer runs sync passes against one store. Passes must not overlap.
type Syncer struct {
	store  Store
	clock  clock.Clock
	logger *slog.Logger

	encodings          []asset.ContentEncoding
	chunkSize          int
	concurrency        int
	retryAttempts      int
	retryBackoff       time.Duration
	mode               CommitMode
	evidenceIterations uint16
}

// New returns a Syncer. Store, Clock and Logger are required.
func New(config Config) (*Syncer, error) {
	if config.Store == nil {
		return nil, errors.New("assetsync: Store is required")
	}
	if config.Clock == nil {
		return nil, errors.New("assetsync: Clock is required")
	}
	if config.Logger == nil {
		return nil, errors.New("assetsync: Logger is required")
	}
	syncer := &Syncer{
		store:              config.Store,
		clock:              config.Clock,
		logger:             config.Logger,
		encodings:          config.Encodings,
		chunkSize:          config.ChunkSize,
		concurrency:        config.Concurrency,
		retryAttempts:      config.RetryAttempts,
		retryBackoff:       config.RetryBackoff,
		mode:               config.Mode,
		evidenceIterations: config.EvidenceIterations,
	}
	if syncer.chunkSize <= 0 {
		syncer.chunkSize = DefaultChunkSize
	}
	if syncer.concurrency <= 0 {
		syncer.concurrency = DefaultConcurrency
	}
	if syncer.retryAttempts <= 0 {
		syncer.retryAttempts = DefaultRetryAttempts
	}
	if syncer.retryBackoff <= 0 {
		syncer.retryBackoff = DefaultRetryBackoff
	}
	if syncer.evidenceIterations == 0 {
		syncer.evidenceIterations = DefaultEvidenceIterations
	}
	return syncer, nil
}

// Plan is the outcome of comparing a directory with the store.
type Plan struct {
	Root       string
	Assets     []LocalAsset
	Operations []asset.BatchOperation

	// Failures are the files that could not be read or encoded. The
	// store's copies of their keys are left as they are.
	Failures []AssetFailure
}

// AssetFailure records why one file was left out of a plan.
type AssetFailure struct {
	Key string
	Err error
}

func (f AssetFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Key, f.Err)
}

func (f AssetFailure) Unwrap() error {
	return f.Err
}

// Evidence returns the evidence digest of the plan's operations, with
// content re-read from disk.
func (p *Plan) Evidence() (asset.Hash, error) {
	source := make(fileSource, len(p.Assets))
	for _, local := range p.Assets {
		source[local.Key] = local.Descriptor
	}
	return asset.ComputeEvidence(p.Operations, source)
}

// Result describes one sync pass.
type Result struct {
	Plan *Plan

	// BatchID is the batch the pass opened; zero when the store was
	// already in sync.
	BatchID asset.BatchID
	// Evidence is the local evidence of a proposed batch.
	Evidence *asset.Hash
	// Committed reports whether the batch was applied.
	Committed bool
}

// Plan scans root, encodes every file, and diffs the result against
// the store. It changes nothing. A file that cannot be read or
// encoded is recorded in Plan.Failures and skipped; a broken rules
// file or an unreadable directory fails the whole plan.
func (s *Syncer) Plan(ctx context.Context, root string) (*Plan, error) {
	descriptors, err := Scan(root, ScanOptions{DefaultEncodings: s.encodings})
	if err != nil {
		return nil, err
	}
	return s.plan(ctx, root, descriptors)
}

func (s *Syncer) plan(ctx context.Context, root string, descriptors []Descriptor) (*Plan, error) {
	encoded := make([]LocalAsset, len(descriptors))
	encodeErrors := make([]error, len(descriptors))
	err := forEachBounded(ctx, s.concurrency, len(descriptors), func(ctx context.Context, i int) error {
		encoded[i], encodeErrors[i] = encodeFile(descriptors[i])
		return nil
	})
	if err != nil {
		return nil, err
	}

	plan := &Plan{Root: root}
	skipped := make(map[string]bool)
	for i, descriptor := range descriptors {
		if encodeErrors[i] != nil {
			s.logger.Warn("skipping unreadable asset", "key", descriptor.Key, "path", descriptor.SourcePath, "error", encodeErrors[i])
			plan.Failures = append(plan.Failures, AssetFailure{Key: descriptor.Key, Err: encodeErrors[i]})
			skipped[descriptor.Key] = true
			continue
		}
		plan.Assets = append(plan.Assets, encoded[i])
	}

	remote, err := s.remote(ctx, plan.Assets)
	if err != nil {
		return nil, err
	}
	remote = slices.DeleteFunc(remote, func(entry RemoteAsset) bool {
		return skipped[entry.Key]
	})

	plan.Operations = Diff(plan.Assets, remote)
	s.logger.Info("sync planned",
		"root", root,
		"local_assets", len(plan.Assets),
		"remote_assets", len(remote),
		"operations", len(plan.Operations),
		"skipped", len(plan.Failures),
	)
	return plan, nil
}

// remote lists the store and fetches the properties of every asset
// that survives the delete phase; the others are deleted and their
// properties do not matter.
func (s *Syncer) remote(ctx context.Context, local []LocalAsset) ([]RemoteAsset, error) {
	listing, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing store: %w", err)
	}
	contentTypes := make(map[string]string, len(local))
	for _, entry := range local {
		contentTypes[entry.Key] = entry.ContentType
	}

	remote := make([]RemoteAsset, len(listing))
	err = forEachBounded(ctx, s.concurrency, len(listing), func(ctx context.Context, i int) error {
		remote[i].AssetDetails = listing[i]
		contentType, ok := contentTypes[listing[i].Key]
		if !ok || contentType != listing[i].ContentType {
			return nil
		}
		properties, err := s.store.GetAssetProperties(ctx, listing[i].Key)
		if err != nil {
			return fmt.Errorf("getting properties of %s: %w", listing[i].Key, err)
		}
		remote[i].Properties = properties
		return nil
	})
	if err != nil {
		return nil, err
	}
	return remote, nil
}

// Sync plans root and applies the plan.
func (s *Syncer) Sync(ctx context.Context, root string) (*Result, error) {
	plan, err := s.Plan(ctx, root)
	if err != nil {
		return nil, err
	}
	return s.Apply(ctx, plan)
}

// Apply uploads and commits plan according to the commit mode. An
// empty plan opens no batch.
//
// A failure after the batch is opened leaves it uncommitted; the
// store reclaims it when it expires. On an evidence mismatch the
// error matches asset.ErrEvidenceMismatch and commit_proposed_batch
// is never called.
func (s *Syncer) Apply(ctx context.Context, plan *Plan) (*Result, error) {
	result := &Result{Plan: plan}
	if len(plan.Operations) == 0 {
		s.logger.Info("store already in sync", "root", plan.Root)
		return result, nil
	}

	operations := cloneOperations(plan.Operations)
	content := make(map[string]LocalAsset, len(plan.Assets))
	for _, local := range plan.Assets {
		content[local.Key] = local
	}

	batchID, err := s.store.CreateBatch(ctx)
	if err != nil {
		return result, fmt.Errorf("creating batch: %w", err)
	}
	result.BatchID = batchID
	s.logger.Info("batch created", "batch_id", batchID, "mode", s.mode.String())

	if err := s.upload(ctx, batchID, operations, content); err != nil {
		return result, err
	}

	if s.mode == CommitDirect {
		if err := s.store.CommitBatch(ctx, batchID, operations); err != nil {
			return result, fmt.Errorf("committing batch %d: %w", batchID, err)
		}
		result.Committed = true
		s.logger.Info("batch committed", "batch_id", batchID, "operations", len(operations))
		return result, nil
	}

	localEvidence, err := plan.Evidence()
	if err != nil {
		return result, fmt.Errorf("computing local evidence: %w", err)
	}
	result.Evidence = &localEvidence

	if err := s.store.ProposeCommitBatch(ctx, batchID, operations); err != nil {
		return result, fmt.Errorf("proposing batch %d: %w", batchID, err)
	}
	s.logger.Info("batch proposed", "batch_id", batchID, "evidence", localEvidence.String())
	if s.mode == CommitProposeOnly {
		return result, nil
	}

	if err := s.confirmEvidence(ctx, batchID, localEvidence); err != nil {
		return result, err
	}
	if err := s.store.CommitProposedBatch(ctx, batchID, localEvidence); err != nil {
		return result, fmt.Errorf("committing proposed batch %d: %w", batchID, err)
	}
	result.Committed = true
	s.logger.Info("batch committed", "batch_id", batchID, "operations", len(operations))
	return result, nil
}

// CheckProposal recomputes the evidence of the batch root would
// produce and compares it with the store's evidence for batchID. It
// returns the local evidence; the error matches
// asset.ErrEvidenceMismatch when they differ.
func (s *Syncer) CheckProposal(ctx context.Context, root string, batchID asset.BatchID) (asset.Hash, error) {
	plan, err := s.Plan(ctx, root)
	if err != nil {
		return asset.Hash{}, err
	}
	localEvidence, err := plan.Evidence()
	if err != nil {
		return asset.Hash{}, fmt.Errorf("computing local evidence: %w", err)
	}
	return localEvidence, s.confirmEvidence(ctx, batchID, localEvidence)
}

// confirmEvidence drives compute_evidence to completion and compares
// the result with expected.
func (s *Syncer) confirmEvidence(ctx context.Context, batchID asset.BatchID, expected asset.Hash) error {
	calls := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		calls++
		evidence, err := s.store.ComputeEvidence(ctx, batchID, s.evidenceIterations)
		if err != nil {
			return fmt.Errorf("computing evidence of batch %d: %w", batchID, err)
		}
		if evidence == nil {
			continue
		}
		if *evidence != expected {
			s.logger.Error("evidence mismatch",
				"batch_id", batchID,
				"store_evidence", evidence.String(),
				"local_evidence", expected.String(),
			)
			return fmt.Errorf("batch %d: store evidence %s, local evidence %s: %w",
				batchID, evidence, expected, asset.ErrEvidenceMismatch)
		}
		s.logger.Info("evidence confirmed", "batch_id", batchID, "calls", calls)
		return nil
	}
}

// cloneOperations copies operations deeply enough that the upload can
// fill in chunk IDs without touching the plan.
func cloneOperations(operations []asset.BatchOperation) []asset.BatchOperation {
	cloned := make([]asset.BatchOperation, len(operations))
	for i, operation := range operations {
		if operation.SetAssetContent != nil {
			arguments := *operation.SetAssetContent
			operation.SetAssetContent = &arguments
		}
		cloned[i] = operation
	}
	return cloned
}
