package models

import "testing"

func TestValidRequestTransition(t *testing.T) {
	allowed := []struct{ from, to RequestStatus }{
		{RequestOpen, RequestBidding},
		{RequestOpen, RequestAssigned},
		{RequestBidding, RequestAssigned},
		{RequestAssigned, RequestInProgress},
		{RequestAssigned, RequestCompleted},
		{RequestInProgress, RequestCompleted},
		{RequestCompleted, RequestPaid},
		{RequestOpen, RequestCancelled},
		{RequestBidding, RequestCancelled},
		{RequestAssigned, RequestCancelled},
		{RequestOpen, RequestOpen},
		{RequestPaid, RequestPaid},
	}

	for _, c := range allowed {
		if !ValidRequestTransition(c.from, c.to) {
			t.Errorf("%s -> %s should be allowed", c.from, c.to)
		}
	}

	forbidden := []struct{ from, to RequestStatus }{
		{RequestBidding, RequestOpen},
		{RequestAssigned, RequestOpen},
		{RequestAssigned, RequestBidding},
		{RequestCompleted, RequestAssigned},
		{RequestCompleted, RequestInProgress},
		{RequestPaid, RequestCompleted},
		{RequestOpen, RequestCompleted},
		{RequestOpen, RequestInProgress},
		{RequestOpen, RequestPaid},
		{RequestBidding, RequestCompleted},
		{RequestInProgress, RequestCancelled},
		{RequestCompleted, RequestCancelled},
		{RequestPaid, RequestCancelled},
		{RequestCancelled, RequestOpen},
		{RequestCancelled, RequestAssigned},
		{RequestOpen, "unknown"},
	}

	for _, c := range forbidden {
		if ValidRequestTransition(c.from, c.to) {
			t.Errorf("%s -> %s should be forbidden", c.from, c.to)
		}
	}
}

func TestAcceptsBids(t *testing.T) {
	biddable := map[RequestStatus]bool{
		RequestOpen:       true,
		RequestBidding:    true,
		RequestAssigned:   false,
		RequestInProgress: false,
		RequestCompleted:  false,
		RequestPaid:       false,
		RequestCancelled:  false,
	}

	for status, expected := range biddable {
		if status.AcceptsBids() != expected {
			t.Errorf("%s.AcceptsBids() should be %t", status, expected)
		}
	}
}
