//go:build gpu

package track

import (
	"runtime"
	"sync"

	"github.com/banshee-data/depthtrack/internal/rigid"
)

// AcceleratedBackendAvailable reports whether this binary was compiled
// with accelerated-backend support. The answer is fixed at build time.
const AcceleratedBackendAvailable = true

// acceleratedObservationModel evaluates body likelihoods on a dedicated
// worker pool, parallelising across bodies. Each model owns its pool
// exclusively (no cross-filter sharing); Close drains and stops it.
type acceleratedObservationModel struct {
	eval *depthEvaluator

	mu      sync.Mutex
	jobs    chan acceleratedJob
	wg      sync.WaitGroup
	workers int
	closed  bool
}

type acceleratedJob struct {
	pose  rigid.Pose
	body  int
	frame *Frame
	out   chan<- float64
}

func newAcceleratedObservationModel(model *ObjectModel, cam CameraData, p ObservationParams) (ObservationModel, error) {
	eval, err := newDepthEvaluator(model, cam, p)
	if err != nil {
		return nil, err
	}
	m := &acceleratedObservationModel{
		eval:    eval,
		jobs:    make(chan acceleratedJob),
		workers: runtime.GOMAXPROCS(0),
	}
	m.wg.Add(m.workers)
	for i := 0; i < m.workers; i++ {
		go func() {
			defer m.wg.Done()
			for job := range m.jobs {
				job.out <- m.eval.bodyLogLik(job.pose, job.body, job.frame)
			}
		}()
	}
	return m, nil
}

func (m *acceleratedObservationModel) Evaluate(state rigid.State, frame *Frame) float64 {
	bodies := m.eval.bodies()
	out := make(chan float64, bodies)
	for body := 0; body < bodies; body++ {
		m.jobs <- acceleratedJob{pose: state.PoseAt(body), body: body, frame: frame, out: out}
	}
	total := 0.0
	for i := 0; i < bodies; i++ {
		total += <-out
	}
	return total
}

func (m *acceleratedObservationModel) Backend() Backend { return BackendAccelerated }

func (m *acceleratedObservationModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		close(m.jobs)
		m.wg.Wait()
		m.closed = true
	}
	return nil
}
