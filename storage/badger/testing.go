package badger

// NewMemoryRepositories creates in-memory batch, episode and vector
// repositories for testing. Caller must close the backend when done.
func NewMemoryRepositories() (*BatchRepository, *EpisodeRepository, *VectorRepository, *Backend, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return NewBatchRepository(backend), NewEpisodeRepository(backend), NewVectorRepository(backend), backend, nil
}
