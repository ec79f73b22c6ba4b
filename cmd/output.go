package cmd

import (
	"io"
	"time"

	"github.com/alapierre/go-dian-client/dian/eventlog"
	"github.com/alapierre/go-dian-client/dian/pipeline"
	"github.com/go-faster/jx"
)

func writeOutcome(w io.Writer, out *pipeline.Outcome) error {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.SetIdent(2)

	e.ObjStart()
	e.FieldStart("invoice")
	e.Str(out.InvoiceID)
	e.FieldStart("cufe")
	e.Str(out.CUFE)
	e.FieldStart("state")
	e.Str(out.State.String())
	if r := out.Result; r != nil {
		e.FieldStart("outcome")
		e.Str(r.Outcome.String())
		e.FieldStart("tracking_id")
		e.Str(r.TrackingID)
		e.FieldStart("code")
		e.Str(r.Code)
		e.FieldStart("description")
		e.Str(r.Description)
		e.FieldStart("attempts")
		e.Int(r.Attempts)
		if len(r.Errors) > 0 {
			e.FieldStart("errors")
			e.ArrStart()
			for _, s := range r.Errors {
				e.Str(s)
			}
			e.ArrEnd()
		}
		if r.Err != nil {
			e.FieldStart("error")
			e.Str(r.Err.Error())
		}
	}
	e.ObjEnd()

	_, err := w.Write(append(e.Bytes(), '\n'))
	return err
}

func writeEvents(w io.Writer, records []eventlog.Record) error {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.SetIdent(2)

	e.ArrStart()
	for _, r := range records {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(r.ID.String())
		e.FieldStart("timestamp")
		e.Str(r.Timestamp.Format(time.RFC3339Nano))
		e.FieldStart("kind")
		e.Str(string(r.Kind))
		e.FieldStart("code")
		e.Str(r.Code)
		e.FieldStart("description")
		e.Str(r.Description)
		e.FieldStart("is_error")
		e.Bool(r.IsError)
		e.FieldStart("state")
		e.Str(r.State.String())
		if len(r.Details) > 0 {
			e.FieldStart("details")
			e.Raw(eventlog.EncodeDetails(r.Details))
		}
		e.ObjEnd()
	}
	e.ArrEnd()

	_, err := w.Write(append(e.Bytes(), '\n'))
	return err
}
