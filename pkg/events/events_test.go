// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"context"
	"testing"
	"time"
)

func TestBusPublishFanOut(t *testing.T) {
	bus := NewBus(nil)

	var gotA, gotB []Event
	bus.Subscribe(SubscriberFunc(func(e Event) { gotA = append(gotA, e) }))
	bus.Subscribe(SubscriberFunc(func(e Event) { gotB = append(gotB, e) }))

	e := Event{Kind: KindPatternCreated, Workspace: "ws", Project: "proj", PatternID: "p1", At: time.Now().UTC()}
	bus.Publish(context.Background(), e)

	if len(gotA) != 1 || len(gotB) != 1 {
		t.Fatalf("want both subscribers to receive 1 event, got %d and %d", len(gotA), len(gotB))
	}
	if gotA[0].PatternID != "p1" {
		t.Fatalf("PatternID = %q, want p1", gotA[0].PatternID)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(nil)

	var got []Event
	unsubscribe := bus.Subscribe(SubscriberFunc(func(e Event) { got = append(got, e) }))
	unsubscribe()

	bus.Publish(context.Background(), Event{Kind: KindAlertPromoted})
	if len(got) != 0 {
		t.Fatalf("unsubscribed listener received %d events, want 0", len(got))
	}
}

func TestBusPublishRecoversPanickingSubscriber(t *testing.T) {
	bus := NewBus(nil)

	bus.Subscribe(SubscriberFunc(func(e Event) { panic("boom") }))

	var gotSecond bool
	bus.Subscribe(SubscriberFunc(func(e Event) { gotSecond = true }))

	bus.Publish(context.Background(), Event{Kind: KindSalienceDetected})
	if !gotSecond {
		t.Fatal("a panicking subscriber must not stop delivery to later subscribers")
	}
}

func TestBusNoSubscribersIsNoop(t *testing.T) {
	bus := NewBus(nil)
	bus.Publish(context.Background(), Event{Kind: KindKillSwitchChanged})
}
