package model

import "testing"

func TestTaskState(t *testing.T) {
	id := uint(1)
	cases := []struct {
		task Task
		want TaskState
	}{
		{Task{}, StateUnassigned},
		{Task{CandidateID: &id}, StateOffered},
		{Task{CandidateID: &id, ExecutorID: &id}, StateAssigned},
		{Task{ExecutorID: &id}, StateAssigned},
		{Task{ExecutorID: &id, IsFinished: true}, StateFinished},
	}
	for _, tc := range cases {
		if got := tc.task.State(); got != tc.want {
			t.Errorf("State(%+v) = %s, want %s", tc.task, got, tc.want)
		}
		if open := tc.task.IsOpen(); open != (tc.want != StateFinished) {
			t.Errorf("IsOpen(%+v) = %v", tc.task, open)
		}
	}
}

func TestDisplayName(t *testing.T) {
	cases := []struct {
		user User
		want string
	}{
		{User{TelegramID: 5, Username: "anna", FirstName: "Anna"}, "@anna"},
		{User{TelegramID: 5, FirstName: " Anna ", LastName: "K"}, "Anna K"},
		{User{TelegramID: 5, FirstName: "Anna"}, "Anna"},
		{User{TelegramID: 5}, "user 5"},
	}
	for _, tc := range cases {
		if got := tc.user.DisplayName(); got != tc.want {
			t.Errorf("DisplayName(%+v) = %q, want %q", tc.user, got, tc.want)
		}
	}
}
