package emulator

import (
	"bytes"
	"context"
	"log"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ezrec/lrvm/cpu"
)

// Job is a single program for the Scheduler.
type Job struct {
	Source string // Assembly source; used when Image is nil.
	Image  []byte // Program image.
}

// Result is the final state of a scheduled program.
type Result struct {
	Id        uuid.UUID
	Registers [cpu.REGISTER_COUNT]int32
	Ticks     int
	Output    []byte // PRTS output.
	Err       error  // Load or runtime error.
}

// Scheduler runs independent programs in parallel, one emulator each.
type Scheduler struct {
	Verbose  bool   // If set, enables verbose logging.
	Threads  int    // Maximum programs run at once; unlimited if zero.
	MaxSteps uint64 // Instruction budget per program; unlimited if zero.
}

// run a single job to completion.
func (sch *Scheduler) run(job Job) (res Result) {
	emu := NewEmulator()
	emu.Verbose = sch.Verbose

	var output bytes.Buffer
	emu.Cpu.Output = &output

	var err error
	if job.Image != nil {
		err = emu.LoadProgram(job.Image)
	} else {
		err = emu.LoadSource(job.Source)
	}
	if err == nil {
		err = emu.Run(sch.MaxSteps)
	}

	res = Result{
		Id:        emu.Id,
		Registers: emu.Registers(),
		Ticks:     emu.Ticks(),
		Output:    output.Bytes(),
		Err:       err,
	}

	return
}

// Run runs all jobs, and returns their results in job order.
//
// Program failures are reported in each Result. The returned error is
// only set when ctx is cancelled; jobs not yet started are then skipped,
// while running jobs complete.
func (sch *Scheduler) Run(ctx context.Context, jobs []Job) (results []Result, err error) {
	results = make([]Result, len(jobs))

	grp, ctx := errgroup.WithContext(ctx)
	if sch.Threads > 0 {
		grp.SetLimit(sch.Threads)
	}

	for n, job := range jobs {
		grp.Go(func() error {
			err := ctx.Err()
			if err != nil {
				results[n].Err = err
				return err
			}

			results[n] = sch.run(job)
			if sch.Verbose {
				log.Printf("job %d: %v: %v ticks, %v", n, results[n].Id, results[n].Ticks, results[n].Err)
			}

			return nil
		})
	}

	err = grp.Wait()

	return
}
