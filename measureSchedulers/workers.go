package main

import (
	"errors"
	"fmt"

	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
	"github.com/next-exp/eventbuilder_go/pkg/telemetry"
)

type WorkerData struct {
	Index int
	Event *eventbuilder.Event
}

type WorkerResult struct {
	Index int
	Data  []byte
	Err   error
}

// worker encodes science packets until jobs is closed.
func worker(id int, hitsPerFragment int, jobs <-chan WorkerData, results chan<- WorkerResult) {
	for job := range jobs {
		results <- encodeEvent(id, hitsPerFragment, job)
	}
}

func encodeEvent(id int, hitsPerFragment int, job WorkerData) (result WorkerResult) {
	defer func() {
		if r := recover(); r != nil {
			errMessage := fmt.Errorf("worker %d recovered from panic on event %d: %v", id, job.Event.ID, r)
			result = WorkerResult{Index: job.Index, Err: errMessage}
		}
	}()

	data, err := telemetry.EncodeScience(job.Event, hitsPerFragment)
	return WorkerResult{Index: job.Index, Data: data, Err: err}
}

func sendEventsToWorkers(events []*eventbuilder.Event, jobs chan<- WorkerData) {
	for i, event := range events {
		jobs <- WorkerData{Index: i, Event: event}
	}
	close(jobs)
}

// collectWorkerResults puts the encoded events back in their original order.
func collectWorkerResults(results <-chan WorkerResult, count int) ([][]byte, error) {
	encoded := make([][]byte, count)
	var errs []error
	for i := 0; i < count; i++ {
		result := <-results
		if result.Err != nil {
			errs = append(errs, result.Err)
			continue
		}
		encoded[result.Index] = result.Data
	}
	return encoded, errors.Join(errs...)
}

func encodeEvents(events []*eventbuilder.Event, numWorkers int, hitsPerFragment int) ([][]byte, error) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	jobs := make(chan WorkerData, 100)
	results := make(chan WorkerResult, 100)
	for w := 1; w <= numWorkers; w++ {
		go worker(w, hitsPerFragment, jobs, results)
	}
	go sendEventsToWorkers(events, jobs)
	return collectWorkerResults(results, len(events))
}
