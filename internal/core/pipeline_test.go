package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	grid RawGrid
	err  error
	got  Locator
}

func (s *fakeSource) FetchGrid(_ context.Context, loc Locator) (RawGrid, error) {
	s.got = loc
	return s.grid, s.err
}

func timesheetProfile() Profile {
	return Profile{
		Name:           "horas",
		Sheet:          "Listagem de Horas",
		HeaderSkipRows: 12,
		Destination:    "voluntarios.stg_listagem_horas",
		Mapping: NewMapping(
			FieldSpec{Source: Column(0), Target: "localidade"},
			FieldSpec{Source: Column(1), Target: "data", Kind: KindCalendarDate},
			FieldSpec{Source: Column(2), Target: "horas", Kind: KindDecimalHours},
			FieldSpec{Source: Column(3), Target: "voluntario", Required: true},
		),
	}
}

// timesheetGrid has 12 preamble rows, then five data rows where rows 0 and 3
// have no volunteer.
func timesheetGrid() RawGrid {
	rows := make([][]string, 0, 17)
	for i := 0; i < 12; i++ {
		rows = append(rows, []string{fmt.Sprintf("preamble %d", i)})
	}
	rows = append(rows,
		[]string{"Centro", "01/02/64", "1:30", ""},
		[]string{"Centro", "15/03/64", "2,5", "Ana"},
		[]string{"Norte", "31/12/99", "01:00", "Bia"},
		[]string{"Norte", "02/01/24", "3", "nan"},
		[]string{"Sul", "07/08/24", "", "Caio"},
	)
	return GridFromStrings(rows)
}

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestPipeline_EndToEnd(t *testing.T) {
	src := &fakeSource{grid: timesheetGrid()}
	sink := &fakeSink{}
	p := NewPipeline(src, sink, WithClock(fixedClock))

	run, err := p.Run(context.Background(), timesheetProfile(), Locator{Container: "b", Path: "entrada/horas/x.xlsx"})
	require.NoError(t, err)

	assert.Equal(t, "Listagem de Horas", src.got.Sheet, "sheet defaults to the profile's")
	assert.Equal(t, 3, run.Outcome.Submitted)
	assert.Equal(t, 3, run.Outcome.Accepted)
	assert.Equal(t, StatusPartial, run.Status(), "two rows were rejected")
	assert.Equal(t, 2, run.Rejected())
	assert.Equal(t, []int{0, 3}, []int{run.Result.Rejections[0].RowIndex, run.Result.Rejections[1].RowIndex})
	assert.NotEmpty(t, run.ID)

	require.Len(t, sink.got, 3)
	var dates []string
	for _, rec := range sink.got {
		v, _ := rec.Get("data")
		dates = append(dates, v.String())
	}
	assert.Equal(t, []string{"1964-03-15", "1999-12-31", "2024-08-07"}, dates)

	horas, _ := sink.got[0].Get("horas")
	assert.Equal(t, 2.5, horas.Decimal)
	assert.Equal(t, 14, sink.got[0].SheetRow)
}

func TestPipeline_AllValidIsSuccess(t *testing.T) {
	grid := timesheetGrid()
	grid[12][3] = TextCell("Dora")
	grid[15][3] = TextCell("Eva")

	run, err := NewPipeline(&fakeSource{grid: grid}, &fakeSink{}, WithClock(fixedClock)).
		Run(context.Background(), timesheetProfile(), Locator{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, run.Status())
	assert.Equal(t, 5, run.Outcome.Accepted)
}

func TestPipeline_EmptyIsDistinct(t *testing.T) {
	grid := timesheetGrid()[:12]
	sink := &fakeSink{}

	run, err := NewPipeline(&fakeSource{grid: grid}, sink).Run(context.Background(), timesheetProfile(), Locator{})
	require.NoError(t, err)

	assert.Equal(t, StatusEmpty, run.Status())
	assert.Zero(t, sink.calls)
}

func TestPipeline_SourceUnavailable(t *testing.T) {
	sink := &fakeSink{}
	src := &fakeSource{err: errors.New("open entrada/horas/x.xlsx: no such file or directory")}

	run, err := NewPipeline(src, sink).Run(context.Background(), timesheetProfile(), Locator{})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.Equal(t, StatusFatal, run.Status())
	assert.Nil(t, run.Result)
	assert.Zero(t, sink.calls)
}

func TestPipeline_SinkFatal(t *testing.T) {
	sink := &fakeSink{err: errors.New("connection reset by peer")}

	run, err := NewPipeline(&fakeSource{grid: timesheetGrid()}, sink).Run(context.Background(), timesheetProfile(), Locator{})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrSinkFatal)
	assert.Equal(t, StatusFatal, run.Status())
	assert.Equal(t, 3, run.Outcome.Submitted)
}

func TestPipeline_ReferenceYear(t *testing.T) {
	grid := timesheetGrid()
	grid[14][1] = TextCell("31/12/24")

	// A 2020 reference year pushes "24" back to 1924.
	sink := &fakeSink{}
	_, err := NewPipeline(&fakeSource{grid: grid}, sink, WithClock(fixedClock), WithReferenceYear(2020)).
		Run(context.Background(), timesheetProfile(), Locator{})
	require.NoError(t, err)
	v, _ := sink.got[1].Get("data")
	assert.Equal(t, "1924-12-31", v.String())

	// The context override wins over the option.
	sink = &fakeSink{}
	ctx := ContextWithReferenceYear(context.Background(), 2030)
	_, err = NewPipeline(&fakeSource{grid: grid}, sink, WithReferenceYear(2020)).Run(ctx, timesheetProfile(), Locator{})
	require.NoError(t, err)
	v, _ = sink.got[1].Get("data")
	assert.Equal(t, "2024-12-31", v.String())
}
