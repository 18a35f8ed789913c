package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestOrder_AddRemoveItem(t *testing.T) {
	now := time.Now()
	order := NewOrder(uuid.New(), now)
	if order.Ordered {
		t.Fatal("new order must be open")
	}
	if !order.OrderedDate.Equal(now) {
		t.Errorf("expected ordered date %v, got %v", now, order.OrderedDate)
	}

	oi := NewOrderItem(order.UserID, "yoga-101", now)
	if !order.AddItem(oi) {
		t.Fatal("expected first add to succeed")
	}
	if order.AddItem(oi) {
		t.Error("expected second add of the same order item to be a no-op")
	}
	if !order.HasItem("yoga-101") {
		t.Error("expected order to contain yoga-101")
	}
	if order.HasItem("pilates-201") {
		t.Error("did not expect pilates-201")
	}

	if !order.RemoveItem(oi.ID) {
		t.Fatal("expected remove to succeed")
	}
	if order.HasItem("yoga-101") {
		t.Error("expected yoga-101 to be gone")
	}
	if order.RemoveItem(oi.ID) {
		t.Error("expected second remove to be a no-op")
	}
}

func TestItem_EffectivePrice(t *testing.T) {
	item := Item{Price: decimal.NewFromInt(20)}
	if !item.EffectivePrice().Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected 20, got %s", item.EffectivePrice())
	}
	item.DiscountPrice = decimal.NewNullDecimal(decimal.NewFromInt(15))
	if !item.EffectivePrice().Equal(decimal.NewFromInt(15)) {
		t.Errorf("expected 15, got %s", item.EffectivePrice())
	}
}

func TestFeedbackForm_Validate(t *testing.T) {
	form := FeedbackForm{Timetable: "Mon-9am", Capacity: "20", Duration: "1h", Facilities: "mat", Price: "10"}
	in, err := form.Validate()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	got, err := json.Marshal(in.Features())
	if err != nil {
		t.Fatal(err)
	}
	want := `{"timetable":"Mon-9am","capacity":20,"time":"1h","facilities":"mat","price":10}`
	if string(got) != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestFeedbackForm_ValidateErrors(t *testing.T) {
	tests := []struct {
		name  string
		form  FeedbackForm
		field string
	}{
		{"missing timetable", FeedbackForm{Capacity: "1", Duration: "1h", Facilities: "mat", Price: "1"}, "timetable"},
		{"capacity not a number", FeedbackForm{Timetable: "Mon", Capacity: "many", Duration: "1h", Facilities: "mat", Price: "1"}, "capacity"},
		{"capacity zero", FeedbackForm{Timetable: "Mon", Capacity: "0", Duration: "1h", Facilities: "mat", Price: "1"}, "capacity"},
		{"blank duration", FeedbackForm{Timetable: "Mon", Capacity: "1", Duration: "  ", Facilities: "mat", Price: "1"}, "duration"},
		{"missing facilities", FeedbackForm{Timetable: "Mon", Capacity: "1", Duration: "1h", Price: "1"}, "facilities"},
		{"negative price", FeedbackForm{Timetable: "Mon", Capacity: "1", Duration: "1h", Facilities: "mat", Price: "-1"}, "price"},
		{"price not a number", FeedbackForm{Timetable: "Mon", Capacity: "1", Duration: "1h", Facilities: "mat", Price: "free"}, "price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.form.Validate()
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if _, ok := verr.Fields[tt.field]; !ok {
				t.Errorf("expected error on %s, got %v", tt.field, verr.Fields)
			}
		})
	}
}

func TestFeedbackForm_UnmarshalJSON(t *testing.T) {
	want := FeedbackForm{Timetable: "Mon-9am", Capacity: "20", Duration: "1h", Facilities: "mat", Price: "10.5"}
	tests := []struct {
		name    string
		body    string
		want    FeedbackForm
		wantErr bool
	}{
		{
			name: "numbers",
			body: `{"timetable":"Mon-9am","capacity":20,"duration":"1h","facilities":"mat","price":10.5}`,
			want: want,
		},
		{
			name: "strings",
			body: `{"timetable":"Mon-9am","capacity":"20","duration":"1h","facilities":"mat","price":"10.5"}`,
			want: want,
		},
		{
			name: "missing and null",
			body: `{"timetable":"Mon-9am","capacity":null}`,
			want: FeedbackForm{Timetable: "Mon-9am"},
		},
		{
			name:    "object value",
			body:    `{"capacity":{"n":20}}`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got FeedbackForm
			err := json.Unmarshal([]byte(tt.body), &got)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}
