package progress

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownView is returned by LookupView for names that match no view.
var ErrUnknownView = errors.New("unknown view")

// View describes one kind of job the device reports on: where its status lives,
// which JSON fields carry the numbers, and how the page presents it.
type View struct {
	// Name identifies the view on the command line and in metrics labels.
	Name string
	// Endpoint is the status document path, resolved against the page URL.
	Endpoint string
	// CountField holds the number of items finished so far.
	CountField string
	// TimeField holds the elapsed job time in milliseconds.
	TimeField string
	// FileField optionally names the item currently being processed.
	FileField string
	// ComputeETA enables the remaining-time estimate.
	ComputeETA bool
	// PollImmediately polls once on start instead of waiting for the first tick.
	PollImmediately bool
	// TargetSelector locates the element on the device page showing the total.
	TargetSelector string
}

// Supported views.
var (
	Calculating = View{
		Name:           "calculating",
		Endpoint:       "calculations.json",
		CountField:     "calculated",
		TimeField:      "time",
		FileField:      "file",
		TargetSelector: "#files",
	}
	Recording = View{
		Name:            "recording",
		Endpoint:        "measurements.json",
		CountField:      "measurements",
		TimeField:       "time",
		ComputeETA:      true,
		PollImmediately: true,
		TargetSelector:  "#recordings",
	}
)

// Views lists every supported view.
func Views() []View {
	return []View{Calculating, Recording}
}

// LookupView resolves a view by case-insensitive name.
func LookupView(name string) (View, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, v := range Views() {
		if v.Name == key {
			return v, nil
		}
	}
	return View{}, fmt.Errorf("%w %q", ErrUnknownView, name)
}
