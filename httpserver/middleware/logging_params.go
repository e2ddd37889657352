/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"time"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-ratelimitd/log"
)

// LoggingParams collects what the handlers of a request add to its "response completed" record.
// It is created by the Logging middleware and is available via GetLoggingParamsFromContext.
type LoggingParams struct {
	fields    []log.Field
	timeSlots timeSlots
}

type timeSlot struct {
	name string
	ms   int64
}

// timeSlots are kept in the order of the first addition.
type timeSlots []timeSlot

func (ts timeSlots) EncodeLogfObject(e logf.FieldEncoder) error {
	for _, slot := range ts {
		e.EncodeFieldInt64(slot.name, slot.ms)
	}
	return nil
}

// ExtendFields adds fields to the record, e.g. the policy the request was checked against.
func (lp *LoggingParams) ExtendFields(fields ...log.Field) {
	lp.fields = append(lp.fields, fields...)
}

// AddTimeSlotDurationInMs accumulates the time spent in a named stage of the request,
// e.g. "rate_limit_check_ms". Slots are logged for slow requests only.
func (lp *LoggingParams) AddTimeSlotDurationInMs(name string, dur time.Duration) {
	for i := range lp.timeSlots {
		if lp.timeSlots[i].name == name {
			lp.timeSlots[i].ms += dur.Milliseconds()
			return
		}
	}
	lp.timeSlots = append(lp.timeSlots, timeSlot{name, dur.Milliseconds()})
}

func (lp *LoggingParams) responseFields(slow bool) []log.Field {
	if !slow || len(lp.timeSlots) == 0 {
		return lp.fields
	}
	return append(lp.fields, log.Field{Key: "time_slots", Type: logf.FieldTypeObject, Any: lp.timeSlots})
}
