package crud

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"wtfGram/domain"
	"wtfGram/errs"
)

// maxFollowAttempts bounds how often a follow or unfollow is re-evaluated after
// losing a version race against a concurrent write to one of the two users.
const maxFollowAttempts = 5

// FollowService manages the follow graph. Every edge lives on two User records, the
// follower's Followings and the followed user's Followers, and the service keeps
// both sides in agreement. It implements the domain.FollowService interface.
type FollowService struct {
	followValidator
}

// followValidator runs validations on incoming follow requests.
// On success, it passes the loaded edge on to followWriter.
type followValidator struct {
	followWriter
}

// followWriter persists both sides of an edge. Within a process, work on a user is
// serialized by the user's stripe lock. Version checks in the store catch the rest.
type followWriter struct {
	store domain.Store
	locks *stripedLocker
	log   logrus.FieldLogger
}

// NewFollowService returns an instance of FollowService.
func NewFollowService(store domain.Store, log logrus.FieldLogger) *FollowService {
	return &FollowService{
		followValidator{
			followWriter{
				store: store,
				locks: newStripedLocker(defaultStripes),
				log:   log,
			},
		},
	}
}

// Ensure the FollowService struct properly implements the domain.FollowService interface.
var _ domain.FollowService = &FollowService{}

// edge is a follow request between two users, loaded by the validations.
type edge struct {
	actorID  string
	targetID string
	actor    *domain.User
	target   *domain.User
}

// Follow makes actor follow target.
func (fv *followValidator) Follow(ctx context.Context, actorID, targetID string) error {
	e := &edge{actorID: domain.CanonicalID(actorID), targetID: domain.CanonicalID(targetID)}
	unlock := fv.locks.Lock(e.actorID, e.targetID)
	defer unlock()

	return fv.retry(ctx, func() error {
		err := runEdgeValFns(ctx, e,
			fv.idsRequired,
			fv.usersExist,
			fv.notSelf,
			fv.notAlreadyFollowing)
		if err != nil {
			return err
		}
		e.actor.Followings = domain.PrependID(e.actor.Followings, e.target.ID)
		e.target.Followers = domain.PrependID(e.target.Followers, e.actor.ID)
		return fv.followWriter.write(ctx, e)
	})
}

// Unfollow removes the edge from actor to target.
func (fv *followValidator) Unfollow(ctx context.Context, actorID, targetID string) error {
	e := &edge{actorID: domain.CanonicalID(actorID), targetID: domain.CanonicalID(targetID)}
	unlock := fv.locks.Lock(e.actorID, e.targetID)
	defer unlock()

	return fv.retry(ctx, func() error {
		err := runEdgeValFns(ctx, e,
			fv.idsRequired,
			fv.usersExist,
			fv.notSelf,
			fv.isFollowing)
		if err != nil {
			return err
		}
		e.actor.Followings = domain.RemoveID(e.actor.Followings, e.target.ID)
		e.target.Followers = domain.RemoveID(e.target.Followers, e.actor.ID)
		return fv.followWriter.write(ctx, e)
	})
}

// Repair makes target's Followers agree with actor's Followings, actor's side being the
// one written first and therefore authoritative. It reports whether anything changed.
func (fv *followValidator) Repair(ctx context.Context, actorID, targetID string) (bool, error) {
	e := &edge{actorID: domain.CanonicalID(actorID), targetID: domain.CanonicalID(targetID)}
	unlock := fv.locks.Lock(e.actorID, e.targetID)
	defer unlock()

	repaired := false
	err := fv.retry(ctx, func() error {
		repaired = false
		if err := runEdgeValFns(ctx, e, fv.idsRequired, fv.usersExist, fv.notSelf); err != nil {
			return err
		}
		wants := domain.ContainsID(e.actor.Followings, e.target.ID)
		has := domain.ContainsID(e.target.Followers, e.actor.ID)
		if wants == has {
			return nil
		}
		if wants {
			e.target.Followers = domain.PrependID(e.target.Followers, e.actor.ID)
		} else {
			e.target.Followers = domain.RemoveID(e.target.Followers, e.actor.ID)
		}
		if err := fv.store.UpdateUser(ctx, e.target); err != nil {
			return err
		}
		repaired = true
		return nil
	})
	if repaired {
		fv.log.WithFields(logrus.Fields{"actor": e.actorID, "target": e.targetID}).Info("repaired follow edge")
	}
	return repaired, err
}

// ReconcileAll walks the whole graph and repairs every asymmetric pair.
// It returns how many pairs were repaired.
func (fs *FollowService) ReconcileAll(ctx context.Context) (int, error) {
	users, err := fs.store.FindUsers(ctx, domain.UserFilter{})
	if err != nil {
		return 0, err
	}
	byID := make(map[string]*domain.User, len(users))
	for _, u := range users {
		byID[domain.CanonicalID(u.ID)] = u
	}

	// Collect every pair where one side mentions the other, keyed follower -> followed.
	type pair struct{ actor, target string }
	pairs := map[pair]bool{}
	for _, u := range users {
		id := domain.CanonicalID(u.ID)
		for _, f := range u.Followings {
			pairs[pair{id, domain.CanonicalID(f)}] = true
		}
		for _, f := range u.Followers {
			pairs[pair{domain.CanonicalID(f), id}] = true
		}
	}

	repaired := 0
	for p := range pairs {
		if err := ctx.Err(); err != nil {
			return repaired, err
		}
		if p.actor == p.target {
			// Nobody follows themselves, drop the id from the user's own lists.
			if err := fs.dropSelf(ctx, p.actor); err != nil {
				return repaired, err
			}
			repaired++
			continue
		}
		actor, target := byID[p.actor], byID[p.target]
		if actor != nil && target != nil && domain.ContainsID(actor.Followings, p.target) == domain.ContainsID(target.Followers, p.actor) {
			continue
		}
		if actor == nil || target == nil {
			// One side was never a user. Nothing to repair across, drop the dangling id.
			if err := fs.dropDangling(ctx, p.actor, p.target, actor, target); err != nil {
				return repaired, err
			}
			repaired++
			continue
		}
		ok, err := fs.Repair(ctx, p.actor, p.target)
		if err != nil {
			return repaired, err
		}
		if ok {
			repaired++
		}
	}
	return repaired, nil
}

// dropDangling removes references to a user that does not exist.
func (fw *followWriter) dropDangling(ctx context.Context, actorID, targetID string, actor, target *domain.User) error {
	unlock := fw.locks.Lock(actorID, targetID)
	defer unlock()

	return fw.retry(ctx, func() error {
		switch {
		case actor != nil:
			u, err := fw.store.UserByID(ctx, actorID)
			if err != nil {
				return err
			}
			u.Followings = domain.RemoveID(u.Followings, targetID)
			return fw.store.UpdateUser(ctx, u)
		case target != nil:
			u, err := fw.store.UserByID(ctx, targetID)
			if err != nil {
				return err
			}
			u.Followers = domain.RemoveID(u.Followers, actorID)
			return fw.store.UpdateUser(ctx, u)
		}
		return nil
	})
}

// dropSelf removes a user's own id from their lists.
func (fw *followWriter) dropSelf(ctx context.Context, id string) error {
	unlock := fw.locks.Lock(id)
	defer unlock()

	return fw.retry(ctx, func() error {
		u, err := fw.store.UserByID(ctx, id)
		if err != nil {
			return err
		}
		u.Followers = domain.RemoveID(u.Followers, id)
		u.Followings = domain.RemoveID(u.Followings, id)
		return fw.store.UpdateUser(ctx, u)
	})
}

// runEdgeValFns runs any number of functions of type edgeValFn on the passed in edge.
// If none of them returns an error, it returns nil. Otherwise, it returns the respective error.
func runEdgeValFns(ctx context.Context, e *edge, fns ...edgeValFn) error {
	for _, fn := range fns {
		if err := fn(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// An edgeValFn is any function that takes in a pointer to an edge and returns an error.
type edgeValFn func(ctx context.Context, e *edge) error

// idsRequired makes sure both ends of the edge are given.
func (fv *followValidator) idsRequired(ctx context.Context, e *edge) error {
	if e.actorID == "" || e.targetID == "" {
		return errs.Errorf(errs.EINVALID, "Both users are required.")
	}
	return nil
}

// usersExist loads both users, fresh on every attempt.
func (fv *followValidator) usersExist(ctx context.Context, e *edge) error {
	actor, err := fv.store.UserByID(ctx, e.actorID)
	if err != nil {
		return err
	}
	target, err := fv.store.UserByID(ctx, e.targetID)
	if err != nil {
		return err
	}
	e.actor, e.target = actor, target
	return nil
}

// notSelf makes sure a user does not follow themselves.
func (fv *followValidator) notSelf(ctx context.Context, e *edge) error {
	if domain.SameID(e.actor.ID, e.target.ID) {
		return errs.Errorf(errs.EINVALID, "You cannot follow yourself.")
	}
	return nil
}

// notAlreadyFollowing makes sure the edge is not complete on both sides yet.
// A half written edge does not count, following again completes it.
func (fv *followValidator) notAlreadyFollowing(ctx context.Context, e *edge) error {
	if domain.Follows(e.actor, e.target) {
		return errs.AlreadyFollowing
	}
	return nil
}

// isFollowing makes sure the edge exists on both sides.
func (fv *followValidator) isFollowing(ctx context.Context, e *edge) error {
	if !domain.Follows(e.actor, e.target) {
		return errs.NotFollowing
	}
	return nil
}

// write persists both users of the edge as one unit. If the store supports transactions
// both updates share one. Otherwise the actor is written first and a failure writing
// the target is reported as errs.EPARTIAL, to be fixed by retrying or by Repair.
func (fw *followWriter) write(ctx context.Context, e *edge) error {
	if tx, ok := fw.store.(domain.Transactor); ok {
		return tx.WithTx(ctx, func(s domain.Store) error {
			if err := s.UpdateUser(ctx, e.actor); err != nil {
				return err
			}
			return s.UpdateUser(ctx, e.target)
		})
	}
	if err := fw.store.UpdateUser(ctx, e.actor); err != nil {
		return err
	}
	if err := fw.store.UpdateUser(ctx, e.target); err != nil {
		fw.log.WithFields(logrus.Fields{"actor": e.actor.ID, "target": e.target.ID}).
			WithError(err).Warn("follow edge only written on the actor side")
		return errs.Wrap(errs.EPARTIAL, err, "The follow was only partially saved, please try again.")
	}
	return nil
}

// retry runs fn until it succeeds or fails with anything but a version conflict.
func (fw *followWriter) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxFollowAttempts; attempt++ {
		err = fn()
		if !isVersionConflict(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}

func isVersionConflict(err error) bool {
	return errs.ErrorCode(err) == errs.ECONFLICT && errors.Is(err, errs.VersionConflict)
}
