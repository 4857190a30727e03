package workspace

import (
	"gitpanel/internal/changelist"
)

// withStore runs a changelist mutation and re-applies the result to the
// cached status.
func (s *Service) withStore(repoID string, fn func(*changelist.Store) error) error {
	e, err := s.reg.lookup(repoID)
	if err != nil {
		return err
	}
	if err := fn(e.store); err != nil {
		return err
	}
	s.reapply(e)
	return nil
}

// Changelists returns the changelist document of repoID.
func (s *Service) Changelists(repoID string) (*changelist.State, error) {
	e, err := s.reg.lookup(repoID)
	if err != nil {
		return nil, err
	}
	return e.store.State()
}

func (s *Service) CreateChangelist(repoID, name string) (*changelist.Changelist, error) {
	var created *changelist.Changelist
	err := s.withStore(repoID, func(store *changelist.Store) error {
		var err error
		created, err = store.Create(name)
		return err
	})
	return created, err
}

func (s *Service) RenameChangelist(repoID, id, name string) error {
	return s.withStore(repoID, func(store *changelist.Store) error {
		return store.Rename(id, name)
	})
}

// DeleteChangelist removes id and every assignment into it.
func (s *Service) DeleteChangelist(repoID, id string) error {
	return s.withStore(repoID, func(store *changelist.Store) error {
		return store.Delete(id)
	})
}

func (s *Service) SetActiveChangelist(repoID, id string) error {
	return s.withStore(repoID, func(store *changelist.Store) error {
		return store.SetActive(id)
	})
}

func (s *Service) AssignFiles(repoID, id string, paths []string) error {
	return s.withStore(repoID, func(store *changelist.Store) error {
		return store.AssignFiles(id, paths)
	})
}

func (s *Service) UnassignFiles(repoID string, paths []string) error {
	return s.withStore(repoID, func(store *changelist.Store) error {
		return store.UnassignFiles(paths)
	})
}

func (s *Service) AssignHunks(repoID, id, path string, hunks []changelist.HunkAssignment) error {
	return s.withStore(repoID, func(store *changelist.Store) error {
		return store.AssignHunks(id, path, hunks)
	})
}

func (s *Service) UnassignHunks(repoID, path string, hunkIDs []string) error {
	return s.withStore(repoID, func(store *changelist.Store) error {
		return store.UnassignHunks(path, hunkIDs)
	})
}
