package email

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mixelka/unimail/internal/metrics"
)

// MovePhase is the strategy a move attempt used.
type MovePhase string

const (
	PhaseMove MovePhase = "move" // atomic MOVE
	PhaseCopy MovePhase = "copy" // COPY, flag \Deleted, EXPUNGE
)

// MoveAttempt records one failed strategy.
type MoveAttempt struct {
	Folder string
	Phase  MovePhase
	Err    error
}

// MoveOutcome describes how a move went.
type MoveOutcome struct {
	Success    bool
	UsedFolder string
	Phase      MovePhase
	// Tried is the candidate list for the destination, in order.
	Tried    []string
	Attempts []MoveAttempt
	// PartialErr is set when the message reached UsedFolder but could not be
	// removed from the source. The message then exists in both folders.
	PartialErr error
	Err        error
}

type moveStrategy struct {
	phase  MovePhase
	folder string
}

// Mover relocates messages between folders of one session.
type Mover struct {
	resolver *FolderResolver
	logger   *slog.Logger
}

// NewMover creates a new mover
func NewMover(resolver *FolderResolver, logger *slog.Logger) *Mover {
	return &Mover{resolver: resolver, logger: logger.With("component", "mover")}
}

// Move moves uid from the session's selected folder to the logical folder
// toLogical. Every candidate is tried with MOVE first; only when MOVE failed
// for all of them is every candidate tried again with copy, delete and
// expunge. The first success ends the iteration.
func (m *Mover) Move(ctx context.Context, s Session, uid uint32, toLogical string) MoveOutcome {
	candidates := m.resolver.Resolve(toLogical)
	out := MoveOutcome{Tried: candidates}

	strategies := make([]moveStrategy, 0, 2*len(candidates))
	for _, phase := range []MovePhase{PhaseMove, PhaseCopy} {
		for _, c := range candidates {
			strategies = append(strategies, moveStrategy{phase: phase, folder: c})
		}
	}

	winner, _, err := firstSuccess(ctx, strategies, func(st moveStrategy) error {
		var err error
		switch st.phase {
		case PhaseMove:
			err = s.Move(ctx, uid, st.folder)
		case PhaseCopy:
			err = m.copyDelete(ctx, s, uid, st.folder, &out)
		}
		if err != nil {
			out.Attempts = append(out.Attempts, MoveAttempt{Folder: st.folder, Phase: st.phase, Err: err})
		}
		return err
	})

	if out.PartialErr != nil {
		out.Err = out.PartialErr
		m.logger.Error("message copied but not removed from source",
			"account_id", s.AccountID(), "uid", uid, "from", s.Folder(), "to", out.UsedFolder, "error", out.PartialErr)
		return out
	}

	if err != nil {
		out.Err = m.failure(ctx, toLogical, candidates, out.Attempts)
		m.logger.Warn("move failed", "account_id", s.AccountID(), "uid", uid, "to", toLogical, "error", out.Err)
		return out
	}

	out.Success = true
	out.UsedFolder = winner.folder
	out.Phase = winner.phase
	if winner.phase == PhaseCopy {
		metrics.MoveFallbacks.Inc()
	}
	m.logger.Debug("message moved", "account_id", s.AccountID(), "uid", uid, "to", winner.folder, "phase", winner.phase)
	return out
}

// copyDelete is the non-atomic fallback. A failed copy lets iteration go on;
// once the copy succeeded the destination holds the message, so a failure to
// delete or expunge halts the iteration and is reported as partial.
func (m *Mover) copyDelete(ctx context.Context, s Session, uid uint32, folder string, out *MoveOutcome) error {
	if err := s.Copy(ctx, uid, folder); err != nil {
		return err
	}
	err := s.MarkDeleted(ctx, uid)
	if err == nil {
		err = s.Expunge(ctx)
	}
	if err != nil {
		out.UsedFolder = folder
		out.Phase = PhaseCopy
		out.PartialErr = &OperationError{Op: "remove moved message", Folder: s.Folder(), UID: uid, Err: err}
		return halt(err)
	}
	return nil
}

func (m *Mover) failure(ctx context.Context, logical string, candidates []string, attempts []MoveAttempt) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	missing := len(attempts) > 0
	errs := make([]error, 0, len(attempts))
	for _, a := range attempts {
		errs = append(errs, a.Err)
		if a.Phase == PhaseCopy && !errors.Is(a.Err, ErrNoSuchFolder) {
			missing = false
		}
	}
	if missing {
		return &FolderNotFoundError{Logical: logical, Tried: candidates}
	}
	return &OperationError{Op: "move", Folder: logical, Err: errors.Join(errs...)}
}
