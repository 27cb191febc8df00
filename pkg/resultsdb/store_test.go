package resultsdb

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/renee-tung/WMInstructionTask/pkg/config"
	"github.com/renee-tung/WMInstructionTask/pkg/plan"
	"github.com/renee-tung/WMInstructionTask/pkg/session"
	"github.com/renee-tung/WMInstructionTask/pkg/task"
)

func testSession() *session.Session {
	p := &plan.Plan{Variant: config.VariantMain, Seed: 42, Blocks: 1, TrialsPerBlock: 2}
	p.Trials = []task.TrialSpec{
		{
			Index:       0,
			Factors:     task.Factors{Category: task.Cars, Cue: task.PreStimulus, Response: task.Button},
			Pair:        3,
			Stim1:       "Cars/Pair3/a.jpg",
			Stim2:       "Cars/Pair3/b.jpg",
			Instruction: "Which car is more expensive?",
			Correct:     task.SideSecond.Ptr(),
		},
		{
			Index:   1,
			Factors: task.Factors{Category: task.Cars, Cue: task.PostStimulus, Response: task.Slider},
		},
	}
	now := time.Date(2025, 3, 14, 10, 2, 33, 0, time.UTC)
	return session.New(config.Intake{Participant: "P07", EyeTracking: true}, config.VariantMain, p, now)
}

// sqlRecorder captures every statement gorm would run.
type sqlRecorder struct {
	mu  sync.Mutex
	sql []string
}

func (r *sqlRecorder) LogMode(logger.LogLevel) logger.Interface { return r }
func (r *sqlRecorder) Info(context.Context, string, ...interface{}) {}
func (r *sqlRecorder) Warn(context.Context, string, ...interface{}) {}
func (r *sqlRecorder) Error(context.Context, string, ...interface{}) {}
func (r *sqlRecorder) Trace(_ context.Context, _ time.Time, fc func() (string, int64), _ error) {
	sql, _ := fc()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sql = append(r.sql, sql)
}

func (r *sqlRecorder) matching(substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sql {
		if strings.Contains(s, substr) {
			n++
		}
	}
	return n
}

// dryRunStore builds SQL without a server.
func dryRunStore(t *testing.T) (*Store, *sqlRecorder) {
	t.Helper()
	rec := &sqlRecorder{}
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "wm:wm@tcp(127.0.0.1:3306)/wm?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               rec,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return NewWithDB(db, 0), rec
}

// -----------------------------------------------------------------------------
// Row mapping
// -----------------------------------------------------------------------------

func TestNewTrialRow_Answered(t *testing.T) {
	s := testSession()
	rt := 812 * time.Millisecond
	it := 2500 * time.Millisecond
	r := &session.TrialResult{
		Index:           0,
		Response:        task.SideSecond.Ptr(),
		ResponseTime:    &rt,
		InstructionTime: &it,
		Outcome:         session.OutcomeSubmitted,
		Start:           10 * time.Second,
		End:             17 * time.Second,
	}

	row := newTrialRow(s, &s.Plan.Trials[0], r)

	if row.SessionID != s.ID || row.Participant != "P07" || row.TrialIndex != 0 {
		t.Errorf("identity = %q %q %d", row.SessionID, row.Participant, row.TrialIndex)
	}
	if row.CorrectSide == nil || *row.CorrectSide != 2 {
		t.Errorf("correct side = %v", row.CorrectSide)
	}
	if row.ResponseSide == nil || *row.ResponseSide != 2 {
		t.Errorf("response side = %v", row.ResponseSide)
	}
	if row.IsCorrect == nil || !*row.IsCorrect {
		t.Errorf("is correct = %v", row.IsCorrect)
	}
	if row.ResponseTimeMS == nil || *row.ResponseTimeMS != 812 {
		t.Errorf("response time = %v", row.ResponseTimeMS)
	}
	if row.InstructionTimeMS == nil || *row.InstructionTimeMS != 2500 {
		t.Errorf("instruction time = %v", row.InstructionTimeMS)
	}
	if row.StartS != 10 || row.EndS != 17 {
		t.Errorf("start/end = %v/%v", row.StartS, row.EndS)
	}
	if row.SliderFinal != nil || row.SliderJSON != "" {
		t.Errorf("button trial has slider data: %v %q", row.SliderFinal, row.SliderJSON)
	}
}

func TestNewTrialRow_Undefined(t *testing.T) {
	s := testSession()
	r := &session.TrialResult{
		Index:   1,
		Outcome: session.OutcomeUnconfirmed,
		Slider: []session.SliderSample{
			{Position: 0, At: 0},
			{Position: 0.25, At: 100 * time.Millisecond},
			{Position: 0.5, At: 200 * time.Millisecond},
		},
	}

	row := newTrialRow(s, &s.Plan.Trials[1], r)

	if row.CorrectSide != nil || row.ResponseSide != nil || row.IsCorrect != nil {
		t.Errorf("undefined sides mapped to %v %v %v", row.CorrectSide, row.ResponseSide, row.IsCorrect)
	}
	if row.ResponseTimeMS != nil || row.InstructionTimeMS != nil {
		t.Errorf("undefined times mapped to %v %v", row.ResponseTimeMS, row.InstructionTimeMS)
	}
	if row.Outcome != "unconfirmed" {
		t.Errorf("outcome = %q", row.Outcome)
	}
	if row.SliderFinal == nil || *row.SliderFinal != 0.5 {
		t.Errorf("slider final = %v", row.SliderFinal)
	}
	if !strings.HasPrefix(row.SliderJSON, `[{"pos":0,"t":0}`) {
		t.Errorf("slider json = %q", row.SliderJSON)
	}
}

func TestOutcomeColumns(t *testing.T) {
	s := testSession()

	cols := outcomeColumns(s)
	if cols["accuracy"] != nil || cols["scored"] != 0 {
		t.Errorf("unscored session = %v", cols)
	}

	rt := time.Second
	s.Record(&session.TrialResult{Index: 0, Response: task.SideFirst.Ptr(), ResponseTime: &rt, Outcome: session.OutcomeSubmitted})
	s.End(time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC), false)
	s.MarkAborted()

	cols = outcomeColumns(s)
	if cols["accuracy"] != float64(0) || cols["scored"] != 1 {
		t.Errorf("accuracy = %v over %v", cols["accuracy"], cols["scored"])
	}
	if cols["aborted"] != true || cols["completed"] != false {
		t.Errorf("flags = %v", cols)
	}
}

// -----------------------------------------------------------------------------
// Store
// -----------------------------------------------------------------------------

func TestStore_Name(t *testing.T) {
	st, _ := dryRunStore(t)
	if st.Name() != "resultsdb" {
		t.Errorf("Name = %q", st.Name())
	}
	if st.timeout != defaultTimeout {
		t.Errorf("timeout = %v, want default", st.timeout)
	}
}

func TestStore_SaveTrial(t *testing.T) {
	st, rec := dryRunStore(t)
	s := testSession()
	ctx := context.Background()

	for i := range s.Plan.Trials {
		r := &session.TrialResult{Index: i, Outcome: session.OutcomeNone}
		if err := st.SaveTrial(ctx, s, &s.Plan.Trials[i], r); err != nil {
			t.Fatalf("SaveTrial(%d): %v", i, err)
		}
	}

	if n := rec.matching("INSERT INTO `wm_sessions`"); n != 1 {
		t.Errorf("session inserts = %d, want 1", n)
	}
	if n := rec.matching("INSERT INTO `wm_trials`"); n != 2 {
		t.Errorf("trial inserts = %d, want 2", n)
	}
	if n := rec.matching("ON DUPLICATE KEY UPDATE"); n != 2 {
		t.Errorf("upserts = %d, want 2", n)
	}
}

func TestStore_Finish(t *testing.T) {
	st, rec := dryRunStore(t)
	s := testSession()
	s.End(time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC), true)

	if err := st.Finish(context.Background(), s); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if n := rec.matching("UPDATE `wm_sessions`"); n != 1 {
		t.Errorf("session updates = %d, want 1", n)
	}
}
