package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/okian/padmon/internal/adapters/mq/kafka"
	"github.com/okian/padmon/internal/domain/model"
	kafkago "github.com/segmentio/kafka-go"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublisher(t *testing.T) {
	Convey("Given a publisher over a fake writer", t, func() {
		w := &fakeWriter{}
		p, err := kafka.NewPublisher(nil, "readings", kafka.WithWriter(w))
		So(err, ShouldBeNil)

		Convey("When a reading is published", func() {
			r := model.SensorReading{ID: "abc", Timestamp: 1700000000000, BloodFlow: 88, PadRiskScore: 7}
			So(p.Publish(context.Background(), r), ShouldBeNil)

			Convey("Then it is keyed by id and encoded as JSON", func() {
				So(w.msgs, ShouldHaveLength, 1)
				So(string(w.msgs[0].Key), ShouldEqual, "abc")
				So(w.msgs[0].Time.UnixMilli(), ShouldEqual, r.Timestamp)

				var got model.SensorReading
				So(json.Unmarshal(w.msgs[0].Value, &got), ShouldBeNil)
				So(got.PadRiskScore, ShouldEqual, 7)
				So(got.ID, ShouldEqual, "abc")
			})
		})

		Convey("When the writer fails", func() {
			w.err = errors.New("leader not available")
			err := p.Publish(context.Background(), model.SensorReading{ID: "x"})

			Convey("Then the error is wrapped", func() {
				So(errors.Is(err, w.err), ShouldBeTrue)
			})
		})

		Convey("When closed", func() {
			So(p.Close(), ShouldBeNil)
			So(w.closed, ShouldBeTrue)
		})
	})

	Convey("Given no brokers and no writer", t, func() {
		_, err := kafka.NewPublisher(nil, "readings")
		So(errors.Is(err, kafka.ErrNoBrokers), ShouldBeTrue)
	})
}
