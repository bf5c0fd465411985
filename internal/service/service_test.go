package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	gofakeit "github.com/brianvoe/gofakeit/v7"

	"repairmarket/internal/models"
)

// memStore is an in-memory Store with the same guard semantics as the
// real repository, so lifecycle rules can be tested without a database.
type memStore struct {
	mu            sync.Mutex
	seq           int
	users         map[string]models.User
	profiles      map[string]models.TechnicianProfile
	requests      map[string]models.RepairRequest
	bids          map[string]models.Bid
	transactions  map[string]models.Transaction
	notifications map[string]models.Notification
}

func newMemStore() *memStore {
	return &memStore{
		users:         map[string]models.User{},
		profiles:      map[string]models.TechnicianProfile{},
		requests:      map[string]models.RepairRequest{},
		bids:          map[string]models.Bid{},
		transactions:  map[string]models.Transaction{},
		notifications: map[string]models.Notification{},
	}
}

func (m *memStore) nextId() string {
	m.seq++
	return strconv.Itoa(m.seq)
}

func (m *memStore) UserByID(ctx context.Context, id string) (models.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	return user, ok, nil
}

func (m *memStore) TechnicianByID(ctx context.Context, userId string) (models.Technician, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userId]
	if !ok {
		return models.Technician{}, false, nil
	}
	tech := models.Technician{User: user}
	if profile, ok := m.profiles[userId]; ok {
		tech.Profile = &profile
	}
	return tech, true, nil
}

func (m *memStore) SetTechnicianApproval(ctx context.Context, userId string, approved bool) (models.TechnicianProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, ok := m.profiles[userId]
	if !ok {
		return models.TechnicianProfile{}, models.ErrNoUser
	}
	now := time.Now()
	profile.IsApproved = approved
	if approved {
		profile.ApprovedAt = &now
		profile.RejectedAt = nil
	} else {
		profile.RejectedAt = &now
	}
	m.profiles[userId] = profile
	return profile, nil
}

func (m *memStore) AddRequest(ctx context.Context, req models.RepairRequest) (models.RepairRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req.Id = m.nextId()
	req.CreatedAt = time.Now()
	m.requests[req.Id] = req
	return req, nil
}

func (m *memStore) RequestByID(ctx context.Context, id string) (models.RepairRequest, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	return req, ok, nil
}

func (m *memStore) matchesFilter(req models.RepairRequest, f RequestFilter) bool {
	if len(f.CustomerId) > 0 && req.CustomerId != f.CustomerId {
		return false
	}
	if len(f.IssueType) > 0 && req.IssueType != f.IssueType {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if req.Status == s {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (m *memStore) Requests(ctx context.Context, f RequestFilter) ([]models.RepairRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.RepairRequest
	for _, req := range m.requests {
		if m.matchesFilter(req, f) {
			result = append(result, req)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Id < result[j].Id })
	return result, nil
}

func (m *memStore) RequestsNear(ctx context.Context, lon, lat, radiusMeters float64, f RequestFilter) ([]models.RepairRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.RepairRequest
	for _, req := range m.requests {
		if !m.matchesFilter(req, f) {
			continue
		}
		if haversineMeters(lon, lat, req.Location.Longitude, req.Location.Latitude) <= radiusMeters {
			result = append(result, req)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Id < result[j].Id })
	return result, nil
}

func haversineMeters(lon1, lat1, lon2, lat2 float64) float64 {
	const r = 6371000
	rad := math.Pi / 180
	a := math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Cos((lon2-lon1)*rad) +
		math.Sin(lat1*rad)*math.Sin(lat2*rad)
	return r * math.Acos(math.Min(1, a))
}

func (m *memStore) UpdateRequest(ctx context.Context, req models.RepairRequest, prev models.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.requests[req.Id]
	if !ok || stored.Status != prev {
		return models.ErrStaleRequest
	}
	stored.Title = req.Title
	stored.Description = req.Description
	stored.Urgency = req.Urgency
	stored.Status = req.Status
	m.requests[req.Id] = stored
	return nil
}

func (m *memStore) DeleteRequest(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.requests, id)
	return nil
}

func (m *memStore) AddBid(ctx context.Context, bid models.Bid) (models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[bid.RepairRequestId]
	if !ok {
		return models.Bid{}, models.ErrNoRequest
	}
	if !req.Status.AcceptsBids() {
		return models.Bid{}, models.ErrRequestClosed
	}
	for _, b := range m.bids {
		if b.RepairRequestId == bid.RepairRequestId && b.TechnicianId == bid.TechnicianId {
			return models.Bid{}, models.ErrDuplicateBid
		}
	}
	bid.Id = m.nextId()
	bid.CreatedAt = time.Now()
	m.bids[bid.Id] = bid

	if req.Status == models.RequestOpen {
		req.Status = models.RequestBidding
		m.requests[req.Id] = req
	}
	return bid, nil
}

func (m *memStore) BidByID(ctx context.Context, id string) (models.Bid, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bid, ok := m.bids[id]
	return bid, ok, nil
}

func (m *memStore) HasBid(ctx context.Context, requestId, technicianId string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bids {
		if b.RepairRequestId == requestId && b.TechnicianId == technicianId {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Bids(ctx context.Context, f BidFilter) ([]models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.Bid
	for _, b := range m.bids {
		if len(f.RepairRequestId) > 0 && b.RepairRequestId != f.RepairRequestId {
			continue
		}
		if len(f.TechnicianId) > 0 && b.TechnicianId != f.TechnicianId {
			continue
		}
		if len(f.Status) > 0 && b.Status != f.Status {
			continue
		}
		result = append(result, b)
	}
	desc := f.Order == "desc"
	sort.Slice(result, func(i, j int) bool {
		var less bool
		if f.SortBy == "amount" {
			less = result[i].Amount < result[j].Amount
		} else {
			less = result[i].Id < result[j].Id
		}
		if desc {
			return !less
		}
		return less
	})
	return result, nil
}

func (m *memStore) AcceptBid(ctx context.Context, bidId string) (models.Bid, []models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bid, ok := m.bids[bidId]
	if !ok {
		return models.Bid{}, nil, models.ErrNoBid
	}
	req := m.requests[bid.RepairRequestId]
	if !req.Status.AcceptsBids() || bid.Status != models.BidPending {
		return models.Bid{}, nil, models.ErrBidProcessed
	}

	now := time.Now()
	req.Status = models.RequestAssigned
	req.AcceptedBid = bid.Id
	req.AssignedTechnician = bid.TechnicianId
	m.requests[req.Id] = req

	bid.Status = models.BidAccepted
	bid.AcceptedAt = &now
	m.bids[bid.Id] = bid

	var rejected []models.Bid
	for id, sibling := range m.bids {
		if sibling.RepairRequestId == req.Id && id != bid.Id && sibling.Status == models.BidPending {
			sibling.Status = models.BidRejected
			sibling.RejectedAt = &now
			m.bids[id] = sibling
			rejected = append(rejected, sibling)
		}
	}
	return bid, rejected, nil
}

func (m *memStore) MarkBidRejected(ctx context.Context, bidId, reason string) (models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bid, ok := m.bids[bidId]
	if !ok || bid.Status != models.BidPending {
		return models.Bid{}, models.ErrBidProcessed
	}
	now := time.Now()
	bid.Status = models.BidRejected
	bid.RejectReason = reason
	bid.RejectedAt = &now
	m.bids[bidId] = bid
	return bid, nil
}

func (m *memStore) MarkBidWithdrawn(ctx context.Context, bidId string) (models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bid, ok := m.bids[bidId]
	if !ok || bid.Status != models.BidPending {
		return models.Bid{}, models.ErrBidProcessed
	}
	bid.Status = models.BidWithdrawn
	m.bids[bidId] = bid
	return bid, nil
}

func (m *memStore) CompleteRequest(ctx context.Context, requestId string, tr models.Transaction) (models.RepairRequest, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[requestId]
	if !ok {
		return models.RepairRequest{}, false, models.ErrNoRequest
	}
	if req.Status != models.RequestPaid {
		if req.Status != models.RequestAssigned && req.Status != models.RequestInProgress {
			return models.RepairRequest{}, false, models.ErrBadTransition
		}
		now := time.Now()
		req.Status = models.RequestCompleted
		req.CompletedAt = &now
	}

	created := false
	if _, exists := m.transactions[requestId]; !exists {
		tr.Id = m.nextId()
		m.transactions[requestId] = tr
		created = true
	}

	if req.Status == models.RequestCompleted {
		req.Status = models.RequestPaid
	}
	m.requests[requestId] = req
	return req, created, nil
}

func (m *memStore) AddNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.Id = m.nextId()
	n.CreatedAt = time.Now()
	m.notifications[n.Id] = n
	return n, nil
}

func (m *memStore) Notifications(ctx context.Context, userId string, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.Notification
	for _, n := range m.notifications {
		if n.UserId != userId {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Id < result[j].Id })
	return result, nil
}

func (m *memStore) MarkNotificationRead(ctx context.Context, userId, notificationId string) (models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[notificationId]
	if !ok || n.UserId != userId {
		return models.Notification{}, models.ErrNoNotification
	}
	now := time.Now()
	n.IsRead = true
	n.ReadAt = &now
	m.notifications[notificationId] = n
	return n, nil
}

//// Fixtures

type fixture struct {
	store   *memStore
	service *Service
}

func newFixture() *fixture {
	store := newMemStore()
	return &fixture{
		store:   store,
		service: NewService(store, noopNotifier{}),
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(ctx context.Context, userId string, typ models.NotificationType, title, message string, data models.NotificationData) {
}

func (f *fixture) addUser(role models.Role, lon, lat float64) models.User {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	user := models.User{
		Id:       f.store.nextId(),
		Name:     gofakeit.Name(),
		Email:    gofakeit.Email(),
		Role:     role,
		IsActive: true,
	}
	if lon != 0 || lat != 0 {
		user.Longitude = &lon
		user.Latitude = &lat
	}
	f.store.users[user.Id] = user
	return user
}

func (f *fixture) addTechnician(approved bool, radiusKm, lon, lat float64) models.User {
	user := f.addUser(models.RoleTechnician, lon, lat)
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.profiles[user.Id] = models.TechnicianProfile{
		Id:              f.store.nextId(),
		UserId:          user.Id,
		Experience:      3,
		Specializations: []string{"screen"},
		ServiceRadiusKm: radiusKm,
		IsApproved:      approved,
	}
	return user
}

func (f *fixture) addRequest(t *testing.T, customer models.User, lon, lat float64) models.RepairRequest {
	t.Helper()
	req, err := f.service.CreateRequest(context.Background(), NewRequest{
		CustomerId:  customer.Id,
		Title:       gofakeit.BuzzWord(),
		Description: gofakeit.Blurb(),
		DeviceInfo:  models.DeviceInfo{Brand: "Samsung", Model: "A52"},
		IssueType:   models.IssueScreen,
		Location:    models.Location{Longitude: lon, Latitude: lat, Address: "test"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func (f *fixture) addBid(t *testing.T, requestId, technicianId string, amount float64) models.Bid {
	t.Helper()
	bid, err := f.service.CreateBid(context.Background(), NewBid{
		RepairRequestId: requestId,
		TechnicianId:    technicianId,
		Amount:          amount,
		EstimatedTime:   "2 days",
		Description:     "fix",
	})
	if err != nil {
		t.Fatal(err)
	}
	return bid
}

//// Eligibility

func TestCanBid(t *testing.T) {
	profile := &models.TechnicianProfile{IsApproved: true}
	tech := models.Technician{
		User:    models.User{IsActive: true, Role: models.RoleTechnician},
		Profile: profile,
	}
	open := models.RepairRequest{Status: models.RequestOpen}

	if err := CanBid(open, tech, false); err != nil {
		t.Errorf("approved active technician should be able to bid on open request: %s", err)
	}
	if err := CanBid(models.RepairRequest{Status: models.RequestBidding}, tech, false); err != nil {
		t.Errorf("bidding request should accept more bids: %s", err)
	}

	closed := []models.RequestStatus{
		models.RequestAssigned, models.RequestInProgress,
		models.RequestCompleted, models.RequestPaid, models.RequestCancelled,
	}
	for _, status := range closed {
		err := CanBid(models.RepairRequest{Status: status}, tech, false)
		if !errors.Is(err, models.ErrRequestClosed) {
			t.Errorf("bidding on %s request should fail with ErrRequestClosed, got %v", status, err)
		}
	}

	if err := CanBid(open, tech, true); !errors.Is(err, models.ErrDuplicateBid) {
		t.Errorf("second bid should fail with ErrDuplicateBid, got %v", err)
	}

	noProfile := models.Technician{User: tech.User}
	if err := CanBid(open, noProfile, false); !errors.Is(err, models.ErrNotEligible) {
		t.Errorf("technician without profile should fail with ErrNotEligible, got %v", err)
	}

	unapproved := models.Technician{User: tech.User, Profile: &models.TechnicianProfile{}}
	if err := CanBid(open, unapproved, false); !errors.Is(err, models.ErrNotEligible) {
		t.Errorf("unapproved technician should fail with ErrNotEligible, got %v", err)
	}

	inactive := models.Technician{User: models.User{Role: models.RoleTechnician}, Profile: profile}
	if err := CanBid(open, inactive, false); !errors.Is(err, models.ErrNotEligible) {
		t.Errorf("inactive technician should fail with ErrNotEligible, got %v", err)
	}

	// the closed-request guard wins over duplicates and eligibility
	err := CanBid(models.RepairRequest{Status: models.RequestPaid}, noProfile, true)
	if !errors.Is(err, models.ErrRequestClosed) {
		t.Errorf("closed request should be reported first, got %v", err)
	}
}

//// Bids

func TestCreateBidFlipsRequest(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	customer := f.addUser(models.RoleCustomer, 67, 24.8)
	tech := f.addTechnician(true, 10, 67, 24.8)
	req := f.addRequest(t, customer, 67, 24.8)

	bid := f.addBid(t, req.Id, tech.Id, 500)
	if bid.Status != models.BidPending {
		t.Fatalf("new bid should be pending, got %s", bid.Status)
	}
	if bid.ValidUntil.Before(time.Now().Add(47 * time.Hour)) {
		t.Error("bid validity window should span 48 hours")
	}

	stored, _, err := f.store.RequestByID(ctx, req.Id)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.RequestBidding {
		t.Fatalf("request should flip to bidding, got %s", stored.Status)
	}

	// a second bid keeps the request in bidding
	tech2 := f.addTechnician(true, 10, 67, 24.8)
	f.addBid(t, req.Id, tech2.Id, 600)
	stored, _, _ = f.store.RequestByID(ctx, req.Id)
	if stored.Status != models.RequestBidding {
		t.Fatalf("request should stay bidding, got %s", stored.Status)
	}

	// duplicate from the same technician
	_, err = f.service.CreateBid(ctx, NewBid{
		RepairRequestId: req.Id,
		TechnicianId:    tech.Id,
		Amount:          400,
		EstimatedTime:   "1 day",
	})
	if !errors.Is(err, models.ErrDuplicateBid) {
		t.Errorf("expected ErrDuplicateBid, got %v", err)
	}

	// invalid inputs
	_, err = f.service.CreateBid(ctx, NewBid{
		RepairRequestId: req.Id,
		TechnicianId:    tech2.Id,
		Amount:          0,
		EstimatedTime:   "1 day",
	})
	if !errors.Is(err, models.ErrDuplicateBid) {
		t.Errorf("duplicate check should precede amount validation, got %v", err)
	}

	tech3 := f.addTechnician(true, 10, 67, 24.8)
	_, err = f.service.CreateBid(ctx, NewBid{
		RepairRequestId: req.Id,
		TechnicianId:    tech3.Id,
		Amount:          -5,
		EstimatedTime:   "1 day",
	})
	if !errors.Is(err, models.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}

	_, err = f.service.CreateBid(ctx, NewBid{
		RepairRequestId: req.Id,
		TechnicianId:    tech3.Id,
		Amount:          100,
		EstimatedTime:   "whenever",
	})
	if !errors.Is(err, models.ErrInvalidEstimate) {
		t.Errorf("expected ErrInvalidEstimate, got %v", err)
	}

	// customers cannot bid at all
	_, err = f.service.CreateBid(ctx, NewBid{
		RepairRequestId: req.Id,
		TechnicianId:    customer.Id,
		Amount:          100,
		EstimatedTime:   "1 day",
	})
	if !errors.Is(err, models.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestAcceptBidSingleWinner(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	customer := f.addUser(models.RoleCustomer, 67, 24.8)
	req := f.addRequest(t, customer, 67, 24.8)

	const contenders = 8
	bids := make([]models.Bid, contenders)
	for i := 0; i < contenders; i++ {
		tech := f.addTechnician(true, 10, 67, 24.8)
		bids[i] = f.addBid(t, req.Id, tech.Id, float64(400+i*10))
	}

	// all contenders race to be accepted; exactly one can win
	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.AcceptBid(ctx, bids[i].Id, customer.Id)
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, err := range errs {
		if err == nil {
			winners++
			continue
		}
		if !errors.Is(err, models.ErrBidProcessed) {
			t.Errorf("loser %d should fail with ErrBidProcessed, got %v", i, err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", winners)
	}

	stored, _, _ := f.store.RequestByID(ctx, req.Id)
	if stored.Status != models.RequestAssigned {
		t.Fatalf("request should be assigned, got %s", stored.Status)
	}

	accepted, rejected := 0, 0
	all, _ := f.store.Bids(ctx, BidFilter{RepairRequestId: req.Id})
	for _, bid := range all {
		switch bid.Status {
		case models.BidAccepted:
			accepted++
			if stored.AcceptedBid != bid.Id || stored.AssignedTechnician != bid.TechnicianId {
				t.Error("request should reference the winning bid and technician")
			}
		case models.BidRejected:
			rejected++
		default:
			t.Errorf("no bid should stay %s after the round resolves", bid.Status)
		}
	}
	if accepted != 1 || rejected != contenders-1 {
		t.Fatalf("expected 1 accepted and %d rejected, got %d and %d", contenders-1, accepted, rejected)
	}
}

func TestAcceptBidAuthorization(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	customer := f.addUser(models.RoleCustomer, 67, 24.8)
	stranger := f.addUser(models.RoleCustomer, 67, 24.8)
	tech := f.addTechnician(true, 10, 67, 24.8)
	req := f.addRequest(t, customer, 67, 24.8)
	bid := f.addBid(t, req.Id, tech.Id, 500)

	if _, err := f.service.AcceptBid(ctx, bid.Id, stranger.Id); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("stranger accept should fail with ErrForbidden, got %v", err)
	}
	if _, err := f.service.AcceptBid(ctx, "999", customer.Id); !errors.Is(err, models.ErrNoBid) {
		t.Errorf("missing bid should fail with ErrNoBid, got %v", err)
	}

	if _, err := f.service.AcceptBid(ctx, bid.Id, customer.Id); err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.AcceptBid(ctx, bid.Id, customer.Id); !errors.Is(err, models.ErrBidProcessed) {
		t.Errorf("double accept should fail with ErrBidProcessed, got %v", err)
	}
}

func TestRejectAndWithdraw(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	customer := f.addUser(models.RoleCustomer, 67, 24.8)
	tech1 := f.addTechnician(true, 10, 67, 24.8)
	tech2 := f.addTechnician(true, 10, 67, 24.8)
	req := f.addRequest(t, customer, 67, 24.8)
	bid1 := f.addBid(t, req.Id, tech1.Id, 500)
	bid2 := f.addBid(t, req.Id, tech2.Id, 600)

	if err := f.service.RejectBid(ctx, bid1.Id, customer.Id, "too slow"); err != nil {
		t.Fatal(err)
	}
	stored, _, _ := f.store.BidByID(ctx, bid1.Id)
	if stored.Status != models.BidRejected || stored.RejectReason != "too slow" {
		t.Errorf("bid should be rejected with its reason, got %s %q", stored.Status, stored.RejectReason)
	}

	// single rejection leaves siblings and the request alone
	sibling, _, _ := f.store.BidByID(ctx, bid2.Id)
	if sibling.Status != models.BidPending {
		t.Errorf("sibling should stay pending, got %s", sibling.Status)
	}
	request, _, _ := f.store.RequestByID(ctx, req.Id)
	if request.Status != models.RequestBidding {
		t.Errorf("request should stay bidding, got %s", request.Status)
	}

	if err := f.service.RejectBid(ctx, bid1.Id, customer.Id, ""); !errors.Is(err, models.ErrBidProcessed) {
		t.Errorf("double reject should fail with ErrBidProcessed, got %v", err)
	}

	if _, err := f.service.WithdrawBid(ctx, bid2.Id, tech1.Id); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("foreign withdraw should fail with ErrForbidden, got %v", err)
	}
	withdrawn, err := f.service.WithdrawBid(ctx, bid2.Id, tech2.Id)
	if err != nil {
		t.Fatal(err)
	}
	if withdrawn.Status != models.BidWithdrawn {
		t.Errorf("expected withdrawn, got %s", withdrawn.Status)
	}
	if _, err = f.service.AcceptBid(ctx, bid2.Id, customer.Id); !errors.Is(err, models.ErrBidProcessed) {
		t.Errorf("accepting a withdrawn bid should fail with ErrBidProcessed, got %v", err)
	}
}

func TestRequestBidsVisibility(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	customer := f.addUser(models.RoleCustomer, 67, 24.8)
	bidder := f.addTechnician(true, 10, 67, 24.8)
	onlooker := f.addTechnician(true, 10, 67, 24.8)
	stranger := f.addUser(models.RoleCustomer, 67, 24.8)
	admin := f.addUser(models.RoleAdmin, 0, 0)
	req := f.addRequest(t, customer, 67, 24.8)
	f.addBid(t, req.Id, bidder.Id, 500)

	for _, user := range []models.User{customer, bidder, admin} {
		bids, err := f.service.RequestBids(ctx, req.Id, user.Id, "amount", "asc")
		if err != nil {
			t.Fatalf("%s should see the bids: %s", user.Role, err)
		}
		if len(bids) != 1 {
			t.Errorf("%s: expected 1 bid, got %d", user.Role, len(bids))
		}
	}

	for _, user := range []models.User{onlooker, stranger} {
		_, err := f.service.RequestBids(ctx, req.Id, user.Id, "amount", "asc")
		if !errors.Is(err, models.ErrForbidden) {
			t.Errorf("%s without a bid should be refused, got %v", user.Role, err)
		}
	}
}

//// Requests

func TestUpdateRequestTransitions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	customer := f.addUser(models.RoleCustomer, 67, 24.8)
	tech := f.addTechnician(true, 10, 67, 24.8)
	req := f.addRequest(t, customer, 67, 24.8)

	status := func(s models.RequestStatus) *models.RequestStatus { return &s }

	// backward move refused
	bid := f.addBid(t, req.Id, tech.Id, 500)
	_, err := f.service.UpdateRequest(ctx, req.Id, customer.Id, RequestChanges{Status: status(models.RequestOpen)})
	if !errors.Is(err, models.ErrBadTransition) {
		t.Errorf("bidding -> open should fail with ErrBadTransition, got %v", err)
	}

	// skipping ahead refused
	_, err = f.service.UpdateRequest(ctx, req.Id, customer.Id, RequestChanges{Status: status(models.RequestPaid)})
	if !errors.Is(err, models.ErrBadTransition) {
		t.Errorf("bidding -> paid should fail with ErrBadTransition, got %v", err)
	}

	if _, err = f.service.AcceptBid(ctx, bid.Id, customer.Id); err != nil {
		t.Fatal(err)
	}

	// assigned technician may start work
	updated, err := f.service.UpdateRequest(ctx, req.Id, tech.Id, RequestChanges{Status: status(models.RequestInProgress)})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.RequestInProgress {
		t.Fatalf("expected in_progress, got %s", updated.Status)
	}

	// but cannot cancel
	_, err = f.service.UpdateRequest(ctx, req.Id, tech.Id, RequestChanges{Status: status(models.RequestCancelled)})
	if !errors.Is(err, models.ErrBadTransition) {
		t.Errorf("in_progress -> cancelled should fail with ErrBadTransition, got %v", err)
	}

	// strangers cannot touch the request
	stranger := f.addUser(models.RoleCustomer, 67, 24.8)
	_, err = f.service.UpdateRequest(ctx, req.Id, stranger.Id, RequestChanges{Status: status(models.RequestCompleted)})
	if !errors.Is(err, models.ErrForbidden) {
		t.Errorf("stranger update should fail with ErrForbidden, got %v", err)
	}

	// completion settles the request as paid
	updated, err = f.service.UpdateRequest(ctx, req.Id, customer.Id, RequestChanges{
		Status: status(models.RequestCompleted),
		Amount: 500,
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.RequestPaid {
		t.Fatalf("completion should settle as paid, got %s", updated.Status)
	}

	// paid requests are frozen
	title := "new title"
	_, err = f.service.UpdateRequest(ctx, req.Id, customer.Id, RequestChanges{Title: &title})
	if !errors.Is(err, models.ErrRequestFinalized) {
		t.Errorf("editing a paid request should fail with ErrRequestFinalized, got %v", err)
	}
}

// raceStore interposes on the request read so another actor can commit
// a transition between a snapshot and the write that follows it.
type raceStore struct {
	*memStore
	onRead func()
}

func (r *raceStore) RequestByID(ctx context.Context, id string) (models.RepairRequest, bool, error) {
	req, ok, err := r.memStore.RequestByID(ctx, id)
	if r.onRead != nil {
		hook := r.onRead
		r.onRead = nil
		hook()
	}
	return req, ok, err
}

func TestUpdateRequestStaleSnapshot(t *testing.T) {
	store := newMemStore()
	race := &raceStore{memStore: store}
	f := &fixture{store: store, service: NewService(race, noopNotifier{})}
	ctx := context.Background()

	customer := f.addUser(models.RoleCustomer, 67, 24.8)
	tech := f.addTechnician(true, 10, 67, 24.8)
	req := f.addRequest(t, customer, 67, 24.8)
	bid := f.addBid(t, req.Id, tech.Id, 500)

	// the bid is accepted between the update's read and its write; the
	// stale snapshot must not drag the request back to bidding
	race.onRead = func() {
		if _, _, err := store.AcceptBid(ctx, bid.Id); err != nil {
			t.Fatal(err)
		}
	}

	title := "cracked screen again"
	_, err := f.service.UpdateRequest(ctx, req.Id, customer.Id, RequestChanges{Title: &title})
	if !errors.Is(err, models.ErrStaleRequest) {
		t.Fatalf("stale update should fail with ErrStaleRequest, got %v", err)
	}

	stored, _, _ := store.RequestByID(ctx, req.Id)
	if stored.Status != models.RequestAssigned {
		t.Fatalf("request should stay assigned, got %s", stored.Status)
	}
	if stored.AcceptedBid != bid.Id || stored.AssignedTechnician != tech.Id {
		t.Error("request should keep its accepted bid and technician")
	}
	if stored.Title == title {
		t.Error("stale update should not apply its field edits")
	}

	// a cancellation committed under a racing update is just as final:
	// the assigned technician starts work on a request the customer has
	// cancelled in the meantime
	req2 := f.addRequest(t, customer, 67, 24.8)
	bid2 := f.addBid(t, req2.Id, tech.Id, 450)
	if _, err = f.service.AcceptBid(ctx, bid2.Id, customer.Id); err != nil {
		t.Fatal(err)
	}
	race.onRead = func() {
		cancelled := withStatus(store, req2.Id, models.RequestCancelled)
		if err := store.UpdateRequest(ctx, cancelled, models.RequestAssigned); err != nil {
			t.Fatal(err)
		}
	}
	inProgress := models.RequestInProgress
	_, err = f.service.UpdateRequest(ctx, req2.Id, tech.Id, RequestChanges{Status: &inProgress})
	if !errors.Is(err, models.ErrStaleRequest) {
		t.Fatalf("update racing a cancellation should fail with ErrStaleRequest, got %v", err)
	}
	stored, _, _ = store.RequestByID(ctx, req2.Id)
	if stored.Status != models.RequestCancelled {
		t.Fatalf("request should stay cancelled, got %s", stored.Status)
	}
}

func withStatus(m *memStore, id string, status models.RequestStatus) models.RepairRequest {
	req, _, _ := m.RequestByID(context.Background(), id)
	req.Status = status
	return req
}

func TestCancellationOwnerOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	customer := f.addUser(models.RoleCustomer, 67, 24.8)
	tech := f.addTechnician(true, 10, 67, 24.8)
	req := f.addRequest(t, customer, 67, 24.8)
	bid := f.addBid(t, req.Id, tech.Id, 500)
	if _, err := f.service.AcceptBid(ctx, bid.Id, customer.Id); err != nil {
		t.Fatal(err)
	}

	cancelled := models.RequestCancelled
	_, err := f.service.UpdateRequest(ctx, req.Id, tech.Id, RequestChanges{Status: &cancelled})
	if !errors.Is(err, models.ErrForbidden) {
		t.Errorf("assigned technician cancellation should fail with ErrForbidden, got %v", err)
	}

	updated, err := f.service.UpdateRequest(ctx, req.Id, customer.Id, RequestChanges{Status: &cancelled})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.RequestCancelled {
		t.Fatalf("expected cancelled, got %s", updated.Status)
	}
}

func TestCompleteRequestIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	customer := f.addUser(models.RoleCustomer, 67, 24.8)
	tech := f.addTechnician(true, 10, 67, 24.8)
	req := f.addRequest(t, customer, 67, 24.8)

	// not assigned yet
	_, err := f.service.CompleteRequest(ctx, req.Id, customer.Id, Completion{Amount: 500})
	if !errors.Is(err, models.ErrNotAssigned) {
		t.Errorf("expected ErrNotAssigned, got %v", err)
	}

	bid := f.addBid(t, req.Id, tech.Id, 500)
	if _, err = f.service.AcceptBid(ctx, bid.Id, customer.Id); err != nil {
		t.Fatal(err)
	}

	done, err := f.service.CompleteRequest(ctx, req.Id, tech.Id, Completion{Amount: 500})
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != models.RequestPaid {
		t.Fatalf("expected paid, got %s", done.Status)
	}

	tr := f.store.transactions[req.Id]
	if tr.Amount != 500 || tr.Currency != "PKR" || tr.PaymentMethod != models.PaymentCash {
		t.Errorf("transaction defaults mismatch: %+v", tr)
	}

	// repeating never mints a second transaction
	if _, err = f.service.CompleteRequest(ctx, req.Id, customer.Id, Completion{Amount: 900}); err != nil {
		t.Fatal(err)
	}
	if f.store.transactions[req.Id].Id != tr.Id {
		t.Error("repeated completion replaced the transaction")
	}
	if len(f.store.transactions) != 1 {
		t.Errorf("expected 1 transaction, got %d", len(f.store.transactions))
	}
}

func TestListRequestsScoping(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	customer1 := f.addUser(models.RoleCustomer, 67, 24.8)
	customer2 := f.addUser(models.RoleCustomer, 67, 24.8)

	// two requests nearby, one far away
	near1 := f.addRequest(t, customer1, 67.001, 24.801)
	f.addRequest(t, customer2, 67.002, 24.802)
	far := f.addRequest(t, customer2, 74.35, 31.52) // Lahore, ~1000 km away

	// customers see only their own
	listed, err := f.service.ListRequests(ctx, customer1.Id, RequestListing{})
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 1 || listed[0].Id != near1.Id {
		t.Errorf("customer should see exactly their own request, got %d", len(listed))
	}

	// located technician is scoped by radius
	tech := f.addTechnician(true, 10, 67, 24.8)
	listed, err = f.service.ListRequests(ctx, tech.Id, RequestListing{})
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 2 {
		t.Fatalf("technician should see the 2 nearby requests, got %d", len(listed))
	}
	for _, req := range listed {
		if req.Id == far.Id {
			t.Error("request outside the service radius leaked into the listing")
		}
	}

	// technician without usable coordinates falls back to everything
	blind := f.addTechnician(true, 10, 0, 0)
	listed, err = f.service.ListRequests(ctx, blind.Id, RequestListing{})
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 3 {
		t.Fatalf("unlocated technician should fall back to the full listing, got %d", len(listed))
	}

	// admin sees everything
	admin := f.addUser(models.RoleAdmin, 0, 0)
	listed, err = f.service.ListRequests(ctx, admin.Id, RequestListing{})
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 3 {
		t.Fatalf("admin should see all requests, got %d", len(listed))
	}
}

func TestDeleteRequest(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	customer := f.addUser(models.RoleCustomer, 67, 24.8)
	tech := f.addTechnician(true, 10, 67, 24.8)
	req := f.addRequest(t, customer, 67, 24.8)

	if err := f.service.DeleteRequest(ctx, req.Id, tech.Id); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("non-owner delete should fail with ErrForbidden, got %v", err)
	}

	bid := f.addBid(t, req.Id, tech.Id, 500)
	if _, err := f.service.AcceptBid(ctx, bid.Id, customer.Id); err != nil {
		t.Fatal(err)
	}
	if err := f.service.DeleteRequest(ctx, req.Id, customer.Id); !errors.Is(err, models.ErrRequestFinalized) {
		t.Errorf("deleting an assigned request should fail with ErrRequestFinalized, got %v", err)
	}

	req2 := f.addRequest(t, customer, 67, 24.8)
	if err := f.service.DeleteRequest(ctx, req2.Id, customer.Id); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := f.store.RequestByID(ctx, req2.Id); ok {
		t.Error("request should be gone after delete")
	}
}

//// Notifications

// recordingNotifier captures events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []models.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, userId string, typ models.NotificationType, title, message string, data models.NotificationData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, models.Notification{
		UserId: userId, Type: typ, Title: title, Message: message, Data: data,
	})
}

func TestLifecycleNotifications(t *testing.T) {
	store := newMemStore()
	recorder := &recordingNotifier{}
	svc := NewService(store, recorder)
	f := &fixture{store: store, service: svc}
	ctx := context.Background()

	customer := f.addUser(models.RoleCustomer, 67, 24.8)
	tech1 := f.addTechnician(true, 10, 67, 24.8)
	tech2 := f.addTechnician(true, 10, 67, 24.8)
	req := f.addRequest(t, customer, 67, 24.8)

	bid1 := f.addBid(t, req.Id, tech1.Id, 500)
	bid2 := f.addBid(t, req.Id, tech2.Id, 450)

	if _, err := svc.AcceptBid(ctx, bid2.Id, customer.Id); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CompleteRequest(ctx, req.Id, customer.Id, Completion{Amount: 450}); err != nil {
		t.Fatal(err)
	}

	type key struct {
		userId string
		typ    models.NotificationType
	}
	got := map[key]models.Notification{}
	for _, e := range recorder.events {
		got[key{e.UserId, e.Type}] = e
	}

	expect := []key{
		{customer.Id, models.NotifyNewBid},
		{tech2.Id, models.NotifyBidAccepted},
		{tech1.Id, models.NotifyBidRejected},
		{tech2.Id, models.NotifyJobCompleted},
	}
	for _, k := range expect {
		if _, ok := got[k]; !ok {
			t.Errorf("missing %s notification for user %s", k.typ, k.userId)
		}
	}

	if n := got[key{tech1.Id, models.NotifyBidRejected}]; n.Data.BidId != bid1.Id {
		t.Errorf("rejection should reference the losing bid, got %q", n.Data.BidId)
	}
	if n := got[key{customer.Id, models.NotifyNewBid}]; n.Data.RepairRequestId != req.Id {
		t.Errorf("new bid notice should reference the request, got %q", n.Data.RepairRequestId)
	}
	if msg := got[key{tech2.Id, models.NotifyBidAccepted}].Message; msg != "Your bid of PKR 450 has been accepted" {
		t.Errorf("unexpected accept message: %q", msg)
	}
}

//// Technicians

func TestApproveTechnicianAdminOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	admin := f.addUser(models.RoleAdmin, 0, 0)
	customer := f.addUser(models.RoleCustomer, 0, 0)
	tech := f.addTechnician(false, 10, 67, 24.8)

	if _, err := f.service.ApproveTechnician(ctx, customer.Id, tech.Id, true); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("non-admin approval should fail with ErrForbidden, got %v", err)
	}

	profile, err := f.service.ApproveTechnician(ctx, admin.Id, tech.Id, true)
	if err != nil {
		t.Fatal(err)
	}
	if !profile.IsApproved || profile.ApprovedAt == nil {
		t.Error("profile should be approved with a timestamp")
	}

	profile, err = f.service.ApproveTechnician(ctx, admin.Id, tech.Id, false)
	if err != nil {
		t.Fatal(err)
	}
	if profile.IsApproved || profile.RejectedAt == nil {
		t.Error("profile should be rejected with a timestamp")
	}
}
