// Package plan builds the randomized, balanced trial plan of a session.
package plan

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/renee-tung/WMInstructionTask/pkg/config"
	taskerrors "github.com/renee-tung/WMInstructionTask/pkg/errors"
	"github.com/renee-tung/WMInstructionTask/pkg/stimuli"
	"github.com/renee-tung/WMInstructionTask/pkg/task"
)

// MidpointMessage is shown when the halves cue schedule switches timing.
const MidpointMessage = "Instruction order will now change!"

// Plan is the ordered list of trials for one session.
type Plan struct {
	Variant        string           `json:"variant"`
	Seed           int64            `json:"seed"`
	Blocks         int              `json:"n_blocks"`
	TrialsPerBlock int              `json:"n_trials_per_block"`
	Trials         []task.TrialSpec `json:"trials"`

	// Warnings records degraded steps (exhausted pools, unrepaired adjacency).
	Warnings []string `json:"warnings,omitempty"`
}

// Len returns the number of trials.
func (p *Plan) Len() int {
	return len(p.Trials)
}

// BlockOf returns the block of trial i. Blocks are never stored on the
// trials themselves.
func (p *Plan) BlockOf(i int) int {
	if p.TrialsPerBlock <= 0 {
		return 0
	}
	return i / p.TrialsPerBlock
}

// BlockRange returns the half-open trial index range of block b.
func (p *Plan) BlockRange(b int) (start, end int) {
	start = b * p.TrialsPerBlock
	end = start + p.TrialsPerBlock
	if end > len(p.Trials) {
		end = len(p.Trials)
	}
	return start, end
}

// Builder turns a task configuration into a Plan.
type Builder struct {
	task     config.TaskConfig
	timing   config.TimingConfig
	inv      stimuli.Inventory
	features *task.FeatureTable
	seed     int64
	rng      *rand.Rand

	warnings []string
}

// NewBuilder creates a builder. The same seed, configuration and inventory
// always produce the same plan.
func NewBuilder(cfg *config.Config, inv stimuli.Inventory, features *task.FeatureTable, seed int64) *Builder {
	return &Builder{
		task:     cfg.Task,
		timing:   cfg.Timing,
		inv:      inv,
		features: features,
		seed:     seed,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// draft is a trial under construction.
type draft struct {
	task.Factors
	easy      bool
	pair      int
	identical bool
}

func (b *Builder) warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[plan] warning: %s", msg)
	b.warnings = append(b.warnings, msg)
}

// Build runs the whole pipeline: cross, replicate, permute, schedule cue
// timing into blocks, draw pairs, repair adjacency, then resolve stimuli,
// text and correct responses in final order.
func (b *Builder) Build() (*Plan, error) {
	n := b.task.TrialCount()
	combos := b.cross()
	if len(combos) == 0 || n == 0 {
		return nil, taskerrors.Plan(taskerrors.ErrPlanInvalidDesign, "design has no trials")
	}

	trials := replicate(combos, n)
	b.rng.Shuffle(len(trials), func(i, j int) { trials[i], trials[j] = trials[j], trials[i] })

	var err error
	var midpoint int
	switch b.task.CueSchedule {
	case config.CueHalves:
		midpoint = b.scheduleHalves(trials)
	default:
		trials, err = b.scheduleBalanced(trials)
		if err != nil {
			return nil, err
		}
	}

	b.drawPairs(trials)
	b.drawIdentical(trials)

	if b.task.AdjacencyRepair {
		for blk := 0; blk < b.task.Blocks; blk++ {
			start := blk * b.task.TrialsPerBlock
			if left := repairAdjacency(trials[start : start+b.task.TrialsPerBlock]); left > 0 {
				b.warnf("block %d: %d adjacent trials share category and pair", blk+1, left)
			}
		}
	}

	b.forceEasy(trials)

	plan := &Plan{
		Variant:        b.task.Variant,
		Seed:           b.seed,
		Blocks:         b.task.Blocks,
		TrialsPerBlock: b.task.TrialsPerBlock,
		Trials:         make([]task.TrialSpec, n),
	}
	for i := range trials {
		spec, err := b.resolve(i, trials[i])
		if err != nil {
			return nil, err
		}
		if midpoint > 0 && i == midpoint {
			spec.Intermission = MidpointMessage
		}
		plan.Trials[i] = spec
	}
	plan.Warnings = b.warnings
	return plan, nil
}

// cross enumerates the factorial design, category slowest.
func (b *Builder) cross() []draft {
	var out []draft
	for _, c := range b.task.Categories {
		for axis := 0; axis < 2; axis++ {
			for _, anti := range b.task.AntiTask {
				for _, prompt := range b.task.Prompt {
					for _, phr := range b.task.Phrasing {
						for _, resp := range b.task.Response {
							out = append(out, draft{Factors: task.Factors{
								Category: c,
								AxisIdx:  axis,
								AntiTask: anti,
								Prompt:   prompt,
								Phrasing: phr,
								Response: resp,
							}})
						}
					}
				}
			}
		}
	}
	return out
}

// replicate repeats combos to fill n trials, padding with leading combos.
func replicate(combos []draft, n int) []draft {
	out := make([]draft, 0, n)
	for len(out)+len(combos) <= n {
		out = append(out, combos...)
	}
	return append(out, combos[:n-len(out)]...)
}

func cellKey(d draft) string {
	return fmt.Sprintf("%d|%d|%d|%t|%t|%t", d.Category, d.Response, d.AxisIdx, d.AntiTask, d.Prompt, d.Phrasing)
}

// scheduleBalanced assigns cue timing as a balanced two-level factor, then
// builds blocks that alternate timing. Each timing's trials are dealt into
// Blocks/2 parts balanced across category and response modality, and a
// coin flip picks which timing opens the session.
func (b *Builder) scheduleBalanced(trials []draft) ([]draft, error) {
	per := b.task.TrialsPerBlock
	half := b.task.Blocks / 2
	if half == 0 || len(trials) != 2*half*per {
		return nil, taskerrors.Plan(taskerrors.ErrPlanInvalidDesign,
			"balanced cue schedule needs an even number of equal blocks")
	}

	all := make([]int, len(trials))
	for i := range all {
		all[i] = i
	}
	byCue := deal(all, 2, func(i int) string { return cellKey(trials[i]) })
	cues := [2]task.CueTiming{task.PreStimulus, task.PostStimulus}
	for g, idx := range byCue {
		for _, i := range idx {
			trials[i].Cue = cues[g]
		}
	}

	parts := [2][][]int{}
	for g := range byCue {
		parts[g] = deal(byCue[g], half, func(i int) string { return cellKey(trials[i]) })
		for _, p := range parts[g] {
			b.rng.Shuffle(len(p), func(x, y int) { p[x], p[y] = p[y], p[x] })
		}
	}

	first := b.rng.Intn(2)
	out := make([]draft, 0, len(trials))
	for blk := 0; blk < b.task.Blocks; blk++ {
		g := (first + blk) % 2
		for _, i := range parts[g][blk/2] {
			out = append(out, trials[i])
		}
	}
	return out, nil
}

// scheduleHalves gives the first half of the session pre-stimulus cues and
// the second half post-stimulus cues. It returns the switch index.
func (b *Builder) scheduleHalves(trials []draft) int {
	mid := len(trials) / 2
	for i := range trials {
		if i < mid {
			trials[i].Cue = task.PreStimulus
		} else {
			trials[i].Cue = task.PostStimulus
		}
	}
	return mid
}

// drawPairs assigns each trial a stimulus pair from the pool of its
// (category, axis) cell. Each pool holds every pair PairRepetitions times.
func (b *Builder) drawPairs(trials []draft) {
	base := make([]int, 0, b.task.Pairs*b.task.PairRepetitions)
	for r := 0; r < b.task.PairRepetitions; r++ {
		for p := 1; p <= b.task.Pairs; p++ {
			base = append(base, p)
		}
	}

	pools := make(map[string]*Pool[int])
	for i := range trials {
		key := fmt.Sprintf("%s/%d", trials[i].Category, trials[i].AxisIdx)
		pool, ok := pools[key]
		if !ok {
			pool = NewPool(base, b.rng)
			pools[key] = pool
		}
		pair, fresh := pool.Draw()
		if !fresh {
			b.warnf("pair pool %s exhausted at trial %d, reusing Pair%d", key, i+1, pair)
		}
		trials[i].pair = pair
	}
}

// drawIdentical decides which identity trials show the same image twice.
// Each category's pool holds equal numbers of same and different outcomes.
func (b *Builder) drawIdentical(trials []draft) {
	quarter := b.task.TrialsPerBlock / 4
	outcomes := make([]bool, 0, 2*quarter)
	for i := 0; i < quarter; i++ {
		outcomes = append(outcomes, false, true)
	}

	pools := make(map[task.Category]*Pool[bool])
	for i := range trials {
		if trials[i].Axis() != task.AxisIdentical {
			continue
		}
		pool, ok := pools[trials[i].Category]
		if !ok {
			pool = NewPool(outcomes, b.rng)
			pools[trials[i].Category] = pool
		}
		if pool.Len() == 0 {
			trials[i].identical = false
			continue
		}
		trials[i].identical, _ = pool.Draw()
	}
}

// forceEasy makes the opening trials standard-task, standard-phrasing.
func (b *Builder) forceEasy(trials []draft) {
	for i := 0; i < b.task.EasyTrials && i < len(trials); i++ {
		trials[i].AntiTask = false
		trials[i].Phrasing = true
		trials[i].easy = true
	}
}

func (b *Builder) jitter(base, spread time.Duration) time.Duration {
	if spread <= 0 {
		return base
	}
	return base - spread + time.Duration(b.rng.Int63n(int64(2*spread)+1))
}

// resolve fills in stimuli, labels, text and the correct response.
func (b *Builder) resolve(i int, d draft) (task.TrialSpec, error) {
	files, err := b.inv.Images(d.Category, d.pair)
	if err != nil {
		return task.TrialSpec{}, err
	}

	var stim1, stim2 string
	switch {
	case len(files) == 1:
		stim1, stim2 = files[0], files[0]
	default:
		perm := b.rng.Perm(len(files))
		stim1, stim2 = files[perm[0]], files[perm[1]]
	}
	if d.identical {
		stim2 = stim1
	}

	promptType := 1 + b.rng.Intn(2)
	labels := task.ResponseLabels(d.Axis(), promptType)

	per := b.task.TrialsPerBlock
	return task.TrialSpec{
		Index:       i,
		Factors:     d.Factors,
		Easy:        d.easy,
		Pair:        d.pair,
		Identical:   d.identical,
		Stim1:       stim1,
		Stim2:       stim2,
		PromptType:  promptType,
		Labels:      labels,
		Instruction: task.InstructionText(d.Factors),
		Motor:       task.MotorText(d.Response),
		Correct:     task.CorrectResponse(d.Factors, labels, stim1, stim2, b.features),
		Fixation:    b.jitter(b.timing.Fixation, b.timing.FixationJitter),
		Delay:       b.jitter(b.timing.Delay, b.timing.DelayJitter),
		BlockEnd:    (i+1)%per == 0 && i < b.task.TrialCount()-1,
	}, nil
}
