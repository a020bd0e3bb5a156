package router

import (
	"sync"

	"qms/patient-client/internal/models"
	"qms/patient-client/internal/session"
)

type Screen string

const (
	ScreenLoading          Screen = "loading"
	ScreenLogin            Screen = "login"
	ScreenRegister         Screen = "register"
	ScreenPatientDashboard Screen = "patient-dashboard"
	ScreenStaffPlaceholder Screen = "staff-placeholder"
)

type Tab string

const (
	TabHome          Tab = "home"
	TabLiveQueue     Tab = "livequeue"
	TabQueue         Tab = "queue"
	TabPrescriptions Tab = "prescriptions"
	TabPharmacy      Tab = "pharmacy"
	TabProfile       Tab = "profile"
)

type TabInfo struct {
	Key   Tab
	Title string
}

var Tabs = []TabInfo{
	{TabHome, "Home"},
	{TabLiveQueue, "Live Queue"},
	{TabQueue, "Token"},
	{TabPrescriptions, "Rx"},
	{TabPharmacy, "Pharmacy"},
	{TabProfile, "Profile"},
}

var navBarTabs = map[Tab]bool{TabHome: true, TabQueue: true, TabPharmacy: true, TabProfile: true}

// NavItem is one entry of the bottom navigation bar.
type NavItem struct {
	TabInfo
	Active bool
	Badge  int
}

// SessionView is the read side of the session store.
type SessionView interface {
	State() session.State
	User() (models.User, bool)
}

type Router struct {
	session SessionView

	mu          sync.Mutex
	registering bool
	tab         Tab
	observers   map[uint64]func(Tab)
	nextID      uint64
}

func New(sess SessionView) *Router {
	return &Router{session: sess, tab: TabHome, observers: make(map[uint64]func(Tab))}
}

// Screen derives the top-level screen from the session state.
func (r *Router) Screen() Screen {
	switch r.session.State() {
	case session.StateLoading:
		return ScreenLoading
	case session.StateAuthenticated:
		user, _ := r.session.User()
		if user.Role == models.RolePatient {
			return ScreenPatientDashboard
		}
		return ScreenStaffPlaceholder
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registering {
		return ScreenRegister
	}
	return ScreenLogin
}

// ShowRegister switches the unauthenticated screen between login and register.
func (r *Router) ShowRegister(show bool) {
	r.mu.Lock()
	r.registering = show
	r.mu.Unlock()
}

func (r *Router) Tab() Tab {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tab
}

// SetTab activates tab, falling back to home for unknown keys, and notifies
// observers with the tab actually selected.
func (r *Router) SetTab(tab Tab) Tab {
	if !Valid(tab) {
		tab = TabHome
	}
	r.mu.Lock()
	r.tab = tab
	observers := make([]func(Tab), 0, len(r.observers))
	for _, fn := range r.observers {
		observers = append(observers, fn)
	}
	r.mu.Unlock()

	for _, fn := range observers {
		fn(tab)
	}
	return tab
}

func (r *Router) OnTabChange(fn func(Tab)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.observers[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.observers, id)
	}
}

// Reset returns to the home tab without notifying observers, as after logout.
func (r *Router) Reset() {
	r.mu.Lock()
	r.tab = TabHome
	r.registering = false
	r.mu.Unlock()
}

// NavBar lists the bottom bar entries; the pharmacy entry carries the number
// of prescriptions awaiting payment.
func (r *Router) NavBar(pendingPayments int) []NavItem {
	active := r.Tab()
	items := make([]NavItem, 0, len(navBarTabs))
	for _, info := range Tabs {
		if !navBarTabs[info.Key] {
			continue
		}
		item := NavItem{TabInfo: info, Active: info.Key == active}
		if info.Key == TabPharmacy && pendingPayments > 0 {
			item.Badge = pendingPayments
		}
		items = append(items, item)
	}
	return items
}

func Valid(tab Tab) bool {
	for _, info := range Tabs {
		if info.Key == tab {
			return true
		}
	}
	return false
}
