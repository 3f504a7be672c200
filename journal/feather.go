package journal

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/arrow"
	"github.com/apache/arrow/go/arrow/array"
	"github.com/apache/arrow/go/arrow/ipc"
	"github.com/apache/arrow/go/arrow/memory"
	"github.com/brendan-ward/gdalprogress/progress"
)

var eventSchema = arrow.NewSchema([]arrow.Field{
	{Name: "seq", Type: arrow.PrimitiveTypes.Int64},
	{Name: "complete", Type: arrow.PrimitiveTypes.Float64},
	{Name: "message", Type: arrow.BinaryTypes.String},
	{Name: "continued", Type: arrow.FixedWidthTypes.Boolean},
}, nil)

// WriteFeather writes the journaled events of run to w as a Feather (Arrow IPC)
// file with columns seq, complete, message and continued.
func (j *Journal) WriteFeather(run string, w io.Writer) error {
	records, err := j.Events(run)
	if err != nil {
		return err
	}

	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, eventSchema)
	defer b.Release()

	seqs := b.Field(0).(*array.Int64Builder)
	completes := b.Field(1).(*array.Float64Builder)
	messages := b.Field(2).(*array.StringBuilder)
	continued := b.Field(3).(*array.BooleanBuilder)
	for _, r := range records {
		seqs.Append(r.Seq)
		completes.Append(r.Event.Complete)
		messages.Append(r.Event.Message)
		continued.Append(r.Continued)
	}

	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(eventSchema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("could not create feather writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("could not write events of run %q: %w", run, err)
	}
	return fw.Close()
}

// ReadFeather reads events written by WriteFeather.
func ReadFeather(r ipc.ReadAtSeeker) ([]Record, error) {
	fr, err := ipc.NewFileReader(r)
	if err != nil {
		return nil, err
	}
	defer fr.Close()

	if !fr.Schema().Equal(eventSchema) {
		return nil, fmt.Errorf("feather file does not hold progress events: %v", fr.Schema())
	}

	var records []Record
	for i := 0; i < fr.NumRecords(); i++ {
		rec, err := fr.RecordAt(i)
		if err != nil {
			return nil, err
		}

		seqs := rec.Column(0).(*array.Int64)
		completes := rec.Column(1).(*array.Float64)
		messages := rec.Column(2).(*array.String)
		continued := rec.Column(3).(*array.Boolean)
		for k := 0; k < int(rec.NumRows()); k++ {
			records = append(records, Record{
				Seq: seqs.Value(k),
				Event: progress.Event{
					Complete: completes.Value(k),
					Message:  messages.Value(k),
				},
				Continued: continued.Value(k),
			})
		}
		rec.Release()
	}

	return records, nil
}
