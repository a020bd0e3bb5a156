package router

import (
	"testing"

	"qms/patient-client/internal/models"
	"qms/patient-client/internal/session"

	"github.com/stretchr/testify/assert"
)

type fakeSession struct {
	state session.State
	user  models.User
}

func (f fakeSession) State() session.State { return f.state }

func (f fakeSession) User() (models.User, bool) {
	return f.user, f.state == session.StateAuthenticated
}

func TestScreen(t *testing.T) {
	tests := []struct {
		name        string
		sess        fakeSession
		registering bool
		want        Screen
	}{
		{"loading", fakeSession{state: session.StateLoading}, false, ScreenLoading},
		{"login", fakeSession{state: session.StateUnauthenticated}, false, ScreenLogin},
		{"register", fakeSession{state: session.StateUnauthenticated}, true, ScreenRegister},
		{"patient", fakeSession{session.StateAuthenticated, models.User{Role: models.RolePatient}}, false, ScreenPatientDashboard},
		{"doctor", fakeSession{session.StateAuthenticated, models.User{Role: models.RoleDoctor}}, true, ScreenStaffPlaceholder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.sess)
			r.ShowRegister(tt.registering)
			assert.Equal(t, tt.want, r.Screen())
		})
	}
}

func TestSetTabNotifiesAndFallsBack(t *testing.T) {
	r := New(fakeSession{state: session.StateAuthenticated})
	var seen []Tab
	dispose := r.OnTabChange(func(tab Tab) { seen = append(seen, tab) })

	assert.Equal(t, TabPharmacy, r.SetTab(TabPharmacy))
	assert.Equal(t, TabHome, r.SetTab("settings"))
	dispose()
	r.SetTab(TabQueue)

	assert.Equal(t, []Tab{TabPharmacy, TabHome}, seen)
	assert.Equal(t, TabQueue, r.Tab())
}

func TestNavBar(t *testing.T) {
	r := New(fakeSession{state: session.StateAuthenticated})
	r.SetTab(TabQueue)

	items := r.NavBar(2)
	keys := []Tab{}
	for _, item := range items {
		keys = append(keys, item.Key)
		switch item.Key {
		case TabPharmacy:
			assert.Equal(t, 2, item.Badge)
		case TabQueue:
			assert.True(t, item.Active)
		default:
			assert.Zero(t, item.Badge)
		}
	}
	assert.Equal(t, []Tab{TabHome, TabQueue, TabPharmacy, TabProfile}, keys)
	assert.Zero(t, r.NavBar(0)[2].Badge)
}
