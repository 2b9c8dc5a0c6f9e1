package store

import (
	"context"
	"sync"
)

type MemStore struct {
	mutex     *sync.RWMutex
	requests  map[string]Request
	responses map[responseKey][]Response
}

func NewMemStore() MemStore {
	return MemStore{
		mutex:     &sync.RWMutex{},
		requests:  make(map[string]Request),
		responses: make(map[responseKey][]Response),
	}
}

type responseKey struct {
	requestID   string
	environment string
}

func (m MemStore) Request(_ context.Context, id string) (*Request, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, nil
	}
	req.Headers = append([]Header(nil), req.Headers...)
	return &req, nil
}

func (m MemStore) PutRequest(_ context.Context, req Request) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests[req.ID] = req
	return nil
}

func (m MemStore) LatestResponse(_ context.Context, requestID, environment string) (*Response, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	responses := m.responses[responseKey{requestID, environment}]
	var latest *Response
	for i, res := range responses {
		// later insert wins on equal timestamps
		if latest == nil || !res.CreatedAt.Before(latest.CreatedAt) {
			latest = &responses[i]
		}
	}
	if latest == nil {
		return nil, nil
	}
	res := *latest
	res.Headers = append([]Header(nil), latest.Headers...)
	return &res, nil
}

func (m MemStore) PutResponse(_ context.Context, res Response) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	key := responseKey{res.RequestID, res.Environment}
	m.responses[key] = append(m.responses[key], res.withID())
	return nil
}

func (m MemStore) Close() error {
	return nil
}
