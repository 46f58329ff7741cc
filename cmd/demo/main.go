package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rs/zerolog"

	"asset-studio/internal/domain/model"
	"asset-studio/internal/infra/adapters/imagegen"
	"asset-studio/internal/scheduler"
	"asset-studio/internal/store"
)

// A small end-to-end walkthrough of the scheduler against the noop
// generation client: submit a batch, watch events stream out of the
// store, then print the aggregate metrics.
func main() {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	logger := zerolog.New(console).With().Timestamp().Logger().Level(zerolog.DebugLevel)

	st := store.New(&logger)
	if err := st.SetMaxConcurrent(2); err != nil {
		log.Fatalf("set max concurrent: %v", err)
	}

	done := make(chan struct{}, 16)
	st.Subscribe(store.EventJobUpdated, func(ev store.Event) {
		fmt.Printf("job %s -> %s\n", ev.Job.ID, ev.Job.Status)
		if ev.Job.Status.IsTerminal() {
			done <- struct{}{}
		}
	})
	st.Subscribe(store.EventStatsUpdated, func(ev store.Event) {
		fmt.Printf("stats: %d total, %d running, %d idle\n",
			ev.Stats.Total, ev.Stats.Running, ev.Stats.Idle)
	})

	client := imagegen.NewNoopClient(300 * time.Millisecond)
	sched := scheduler.New(st, client, &logger)
	defer sched.Close()

	const batchSize = 5
	jobs, err := sched.SubmitBatch(batchSize, model.JobParams{
		Kind:   model.JobKindGenerate,
		Prompt: "isometric cottage, painterly, soft light",
		Width:  1024,
		Height: 1024,
	})
	if err != nil {
		log.Fatalf("submit batch: %v", err)
	}
	fmt.Printf("submitted %d jobs (batch %s)\n", len(jobs), jobs[0].BatchID)

	for i := 0; i < batchSize; i++ {
		<-done
	}

	m := sched.Metrics()
	fmt.Printf("processed %d jobs: %d ok, %d failed, avg %.2fs\n",
		m.Total, m.Completed, m.Failed, m.AverageDurationSeconds)
}
