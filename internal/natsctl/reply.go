package natsctl

import (
	"time"

	"codeberg.org/mutker/simtempd/internal/device"
	"codeberg.org/mutker/simtempd/internal/errors"
	"codeberg.org/mutker/simtempd/internal/sample"
)

// Reply is the JSON body of every response. Exactly one of Value, Status,
// Record or Error is set.
type Reply struct {
	Value  any         `json:"value,omitempty"`
	Status *StatusBody `json:"status,omitempty"`
	Record *Record     `json:"record,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Err converts the error body back into a coded error, nil if none.
func (r *Reply) Err() error {
	if r.Error == nil {
		return nil
	}
	return errors.New().WithMessage(errors.ErrorCode(r.Error.Code), r.Error.Message)
}

type StatusBody struct {
	Flags       uint32 `json:"flags"`
	Urgent      bool   `json:"urgent"`
	Buffered    int    `json:"buffered"`
	Capacity    int    `json:"capacity"`
	Ticks       uint64 `json:"ticks"`
	Evictions   uint64 `json:"evictions"`
	LastMC      int32  `json:"last_mc"`
	AverageMC   int32  `json:"average_mc"`
	SamplingMS  int64  `json:"sampling_ms"`
	ThresholdMC int32  `json:"threshold_mc"`
	Mode        string `json:"mode"`
	Closed      bool   `json:"closed"`
}

func newStatusBody(st device.Status) *StatusBody {
	return &StatusBody{
		Flags:       uint32(st.Flags),
		Urgent:      st.Urgent,
		Buffered:    st.Buffered,
		Capacity:    st.Capacity,
		Ticks:       st.Ticks,
		Evictions:   st.Evictions,
		LastMC:      st.LastTemperature,
		AverageMC:   st.AverageTemperature,
		SamplingMS:  st.SamplingPeriod.Milliseconds(),
		ThresholdMC: st.Threshold,
		Mode:        st.Mode.String(),
		Closed:      st.Closed,
	}
}

// Record carries one sample both decoded and as its 16-byte wire form
// (base64 in JSON).
type Record struct {
	TimestampNS uint64 `json:"timestamp_ns"`
	TempMC      int32  `json:"temp_mc"`
	Flags       uint32 `json:"flags"`
	Alert       bool   `json:"alert"`
	Raw         []byte `json:"raw"`
}

func newRecord(s sample.Sample) *Record {
	raw, _ := s.MarshalBinary()
	return &Record{
		TimestampNS: s.Timestamp,
		TempMC:      s.Temperature,
		Flags:       uint32(s.Flags),
		Alert:       s.Alert(),
		Raw:         raw,
	}
}

// Sample decodes the wire form.
func (r *Record) Sample() (sample.Sample, error) {
	var s sample.Sample
	err := s.UnmarshalBinary(r.Raw)
	return s, err
}

func errorReply(err error) Reply {
	return Reply{Error: &ErrorBody{Code: string(errors.CodeOf(err)), Message: err.Error()}}
}

// defaultReadWait bounds read.wait when the request names no timeout.
const defaultReadWait = time.Second
