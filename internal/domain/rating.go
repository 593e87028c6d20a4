package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// RatingScale is the number of fractional digits kept for aggregate ratings,
// matching the NUMERIC(3,2) column.
const RatingScale = 2

// Rating is an exact aggregate star rating. It serializes as a string with
// two fractional digits ("4.50") so clients never see float drift.
type Rating struct {
	decimal.Decimal
}

// NewRating rounds d to RatingScale digits.
func NewRating(d decimal.Decimal) Rating {
	return Rating{d.Round(RatingScale)}
}

// ParseRating parses a decimal string as stored by Postgres.
func ParseRating(s string) (Rating, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Rating{}, fmt.Errorf("parse rating %q: %w", s, err)
	}
	return NewRating(d), nil
}

// String returns the rating with exactly two fractional digits.
func (r Rating) String() string {
	return r.StringFixed(RatingScale)
}

func (r Rating) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Rating) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*r = NewRating(d)
	return nil
}

// RatingAggregate is the derived (rating, numReviews) pair of a product.
type RatingAggregate struct {
	Average Rating `json:"rating"`
	Count   int    `json:"num_reviews"`
}

// MeanOf recomputes the aggregate of ratings from scratch. The mean of an
// empty set is zero.
func MeanOf(ratings []int) RatingAggregate {
	if len(ratings) == 0 {
		return RatingAggregate{Average: NewRating(decimal.Zero)}
	}
	var sum int64
	for _, r := range ratings {
		sum += int64(r)
	}
	avg := decimal.NewFromInt(sum).Div(decimal.NewFromInt(int64(len(ratings))))
	return RatingAggregate{Average: NewRating(avg), Count: len(ratings)}
}
