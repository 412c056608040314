package docbind

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userCardDef() *Definition {
	return &Definition{
		Name: "UserCard",
		Properties: map[string]Options{
			"uid": {},
			"user": {
				Doc:  "users/{uid}",
				Type: TypeObject,
				Live: true,
			},
		},
	}
}

func TestAttach_StaticPathSubscribesImmediately(t *testing.T) {
	client := newFakeClient()
	def := &Definition{
		Name: "Settings",
		Properties: map[string]Options{
			"settings": {Doc: "config/global", Type: TypeObject, Live: true},
		},
	}
	b, host := newTestBinder(t, def, client)

	require.NoError(t, b.Attach())

	require.Contains(t, client.docs, "config/global")
	assert.Equal(t, 1, client.docs["config/global"].liveListeners())
	assert.Equal(t, client.docs["config/global"], host.Get("settingsRef"))
	assert.False(t, b.Ready("settings"))

	client.docs["config/global"].deliver(existingDoc("global", map[string]any{"theme": "dark"}))

	assert.Equal(t, map[string]any{"theme": "dark", IDKey: "global"}, host.Get("settings"))
	assert.Equal(t, true, host.Get("settingsReady"))
	assert.True(t, b.Ready("settings"))
}

func TestAttach_MissingPlaceholderStaysPending(t *testing.T) {
	client := newFakeClient()
	b, host := newTestBinder(t, userCardDef(), client)

	require.NoError(t, b.Attach())

	assert.Empty(t, client.docs, "no reference may be built from an incomplete path")
	assert.Nil(t, host.Get("userRef"))
	assert.Equal(t, false, host.Get("userReady"))
}

func TestAttach_UsesCurrentDependencyValues(t *testing.T) {
	client := newFakeClient()
	b, host := newTestBinder(t, userCardDef(), client)
	host.Set("uid", "alice")

	require.NoError(t, b.Attach())

	require.Contains(t, client.docs, "users/alice")
	assert.Equal(t, 1, client.docs["users/alice"].liveListeners())
}

func TestAttach_Idempotent(t *testing.T) {
	client := newFakeClient()
	b, host := newTestBinder(t, userCardDef(), client)
	host.Set("uid", "alice")

	require.NoError(t, b.Attach())
	require.NoError(t, b.Attach())

	assert.Equal(t, 1, client.docs["users/alice"].subscribes)
}

func TestAttach_ConfigErrors(t *testing.T) {
	testCases := []struct {
		name string
		opts Options
	}{
		{"doc with Array type", Options{Doc: "users/{uid}", Type: TypeArray}},
		{"doc with no type", Options{Doc: "users/{uid}"}},
		{"collection with Object type", Options{Collection: "users/{uid}/posts", Type: TypeObject}},
		{"both doc and collection", Options{Doc: "a/b", Collection: "c", Type: TypeObject}},
		{"unterminated placeholder", Options{Doc: "users/{uid", Type: TypeObject}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newFakeClient()
			def := &Definition{
				Name:       "Broken",
				Properties: map[string]Options{"value": tc.opts},
			}
			b, _ := newTestBinder(t, def, client)

			err := b.Attach()
			require.Error(t, err)
			assert.True(t, IsConfigError(err), "expected config error, got %v", err)
		})
	}
}

func TestAttach_ConfigErrorBeforeAnySubscription(t *testing.T) {
	client := newFakeClient()
	def := &Definition{
		Name: "PartiallyBroken",
		Properties: map[string]Options{
			"good": {Doc: "config/global", Type: TypeObject},
			"bad":  {Collection: "items", Type: TypeObject},
		},
	}
	b, _ := newTestBinder(t, def, client)

	require.Error(t, b.Attach())
	assert.Empty(t, client.docs, "a config error must be raised before any subscription is attempted")
	assert.Empty(t, client.colls)
}

func TestPropertyChanged_RebuildsBinding(t *testing.T) {
	client := newFakeClient()
	b, _ := newTestBinder(t, userCardDef(), client)
	require.NoError(t, b.Attach())

	require.NoError(t, b.PropertyChanged("uid", nil, "alice"))

	require.Contains(t, client.docs, "users/alice")
	assert.Equal(t, 1, client.docs["users/alice"].liveListeners())

	// Dependency change swaps the subscription to the new path.
	require.NoError(t, b.PropertyChanged("uid", "alice", "bob"))

	assert.Equal(t, 0, client.docs["users/alice"].liveListeners())
	assert.Equal(t, 1, client.docs["users/bob"].liveListeners())
}

func TestPropertyChanged_FalsyValueDoesNotRebuild(t *testing.T) {
	falsy := []any{nil, false, "", 0, int64(0), 0.0}

	for _, v := range falsy {
		client := newFakeClient()
		b, _ := newTestBinder(t, userCardDef(), client)
		require.NoError(t, b.Attach())

		require.NoError(t, b.PropertyChanged("uid", "alice", v))
		assert.Empty(t, client.docs, "falsy value %v must not trigger a rebuild", v)
	}
}

func TestPropertyChanged_UnrelatedPropertyIgnored(t *testing.T) {
	client := newFakeClient()
	b, _ := newTestBinder(t, userCardDef(), client)
	require.NoError(t, b.Attach())

	require.NoError(t, b.PropertyChanged("theme", nil, "dark"))
	assert.Empty(t, client.docs)
}

// Multi-dependency bindings rebuild with only the changed value on a
// single-property change. The binding lands in the pending state
// because the remaining dependency slots read as absent. This mirrors
// the reference behavior and is documented on PropertyChanged.
func TestPropertyChanged_DependencyNameMatchesWhole(t *testing.T) {
	client := newFakeClient()
	def := &Definition{
		Name: "OddNames",
		Properties: map[string]Options{
			"feed": {
				Collection: "items",
				Type:       TypeArray,
				Live:       true,
				Observes:   []string{"region,zone"},
			},
		},
	}
	b, host := newTestBinder(t, def, client)
	require.NoError(t, b.Attach())
	require.Empty(t, client.colls, "observed value missing, binding stays pending")

	// "region,zone" is a single dependency name. Neither half of it
	// is a dependency on its own.
	require.NoError(t, b.PropertyChanged("region", nil, "eu"))
	require.NoError(t, b.PropertyChanged("zone", nil, "west"))
	assert.Empty(t, client.colls)

	require.NoError(t, b.PropertyChanged("region,zone", nil, "eu-west"))
	require.Contains(t, client.colls, "items")
	assert.Equal(t, client.colls["items"], host.Get("feedRef"))
}

func TestPropertyChanged_MultiDependencySingleValueLimitation(t *testing.T) {
	client := newFakeClient()
	def := &Definition{
		Name: "PostView",
		Properties: map[string]Options{
			"post": {Doc: "users/{uid}/posts/{postId}", Type: TypeObject, Live: true},
		},
	}
	b, host := newTestBinder(t, def, client)
	host.Set("uid", "alice")
	host.Set("postId", "p1")

	require.NoError(t, b.Attach())
	require.Contains(t, client.docs, "users/alice/posts/p1")

	// The single new value fills only the first slot; the binding is
	// torn down and stays pending.
	require.NoError(t, b.PropertyChanged("postId", "p1", "p2"))

	assert.Equal(t, 0, client.docs["users/alice/posts/p1"].liveListeners())
	assert.False(t, b.Subscribed("post"))
	assert.Nil(t, host.Get("postRef"))
}

func TestRebuild_TrailingSeparatorGuard(t *testing.T) {
	client := newFakeClient()
	b, host := newTestBinder(t, userCardDef(), client)
	require.NoError(t, b.Attach())

	// Empty string is a defined value, so the completeness gate
	// passes, but the stitched path "users/" is malformed.
	require.NoError(t, b.Rebuild("user", ""))

	assert.Empty(t, client.docs)
	assert.Nil(t, host.Get("userRef"))
	assert.Equal(t, false, host.Get("userReady"))
}

func TestRebuild_AtMostOneSubscription(t *testing.T) {
	client := newFakeClient()
	b, _ := newTestBinder(t, userCardDef(), client)
	require.NoError(t, b.Attach())

	require.NoError(t, b.Rebuild("user", "alice"))
	require.NoError(t, b.Rebuild("user", "alice"))
	require.NoError(t, b.Rebuild("user", "bob"))

	live := client.docs["users/alice"].liveListeners() + client.docs["users/bob"].liveListeners()
	assert.Equal(t, 1, live, "exactly one unsubscribe handle may be live after any sequence of rebuilds")
	assert.True(t, b.Subscribed("user"))
}

func TestRebuild_UnknownProperty(t *testing.T) {
	client := newFakeClient()
	b, _ := newTestBinder(t, userCardDef(), client)
	require.NoError(t, b.Attach())

	err := b.Rebuild("nonexistent", "x")
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestTeardown_Idempotent(t *testing.T) {
	client := newFakeClient()
	b, host := newTestBinder(t, userCardDef(), client)
	require.NoError(t, b.Attach())
	require.NoError(t, b.Rebuild("user", "alice"))

	ref := client.docs["users/alice"]
	ref.deliver(existingDoc("alice", map[string]any{"name": "Ada"}))
	require.Equal(t, true, host.Get("userReady"))

	b.Teardown("user")
	b.Teardown("user")

	assert.Equal(t, 1, ref.totalUnsubs(), "unsubscribe must be invoked exactly once")
	assert.Nil(t, host.Get("userRef"))
	assert.Equal(t, false, host.Get("userReady"))
	assert.Nil(t, b.Ref("user"))
	assert.False(t, b.Ready("user"))
}

func TestTeardown_PreservesValue(t *testing.T) {
	client := newFakeClient()
	b, host := newTestBinder(t, userCardDef(), client)
	require.NoError(t, b.Attach())
	require.NoError(t, b.Rebuild("user", "alice"))

	client.docs["users/alice"].deliver(existingDoc("alice", map[string]any{"name": "Ada"}))
	b.Teardown("user")

	// Only the reference and ready flag are cleared.
	assert.Equal(t, map[string]any{"name": "Ada", IDKey: "alice"}, host.Get("user"))
}

func TestDetach_TearsDownAllBindings(t *testing.T) {
	client := newFakeClient()
	def := &Definition{
		Name: "Dashboard",
		Properties: map[string]Options{
			"settings": {Doc: "config/global", Type: TypeObject, Live: true},
			"items":    {Collection: "items", Type: TypeArray, Live: true},
		},
	}
	b, _ := newTestBinder(t, def, client)
	require.NoError(t, b.Attach())

	require.Equal(t, 1, client.docs["config/global"].liveListeners())
	require.Equal(t, 1, client.colls["items"].liveListeners())

	b.Detach()

	assert.Equal(t, 0, client.docs["config/global"].liveListeners())
	assert.Equal(t, 0, client.colls["items"].liveListeners())
}

func TestOneShot_DetachesAfterFirstSnapshot(t *testing.T) {
	client := newFakeClient()
	def := &Definition{
		Name: "ProfileOnce",
		Properties: map[string]Options{
			"user": {Doc: "users/{uid}", Type: TypeObject, Live: false},
		},
	}
	b, host := newTestBinder(t, def, client)
	host.Set("uid", "alice")
	require.NoError(t, b.Attach())

	ref := client.docs["users/alice"]
	ref.deliver(existingDoc("alice", map[string]any{"name": "Ada"}))

	assert.Equal(t, 1, ref.totalUnsubs(), "one-shot must invoke unsubscribe exactly once")
	assert.Equal(t, map[string]any{"name": "Ada", IDKey: "alice"}, host.Get("user"))

	// The reference and ready flag survive the auto-unsubscribe.
	assert.Equal(t, ref, host.Get("userRef"))
	assert.Equal(t, true, host.Get("userReady"))

	// A misbehaving client delivering again must not reassign.
	ref.forceDeliver(existingDoc("alice", map[string]any{"name": "CHANGED"}))
	assert.Equal(t, map[string]any{"name": "Ada", IDKey: "alice"}, host.Get("user"))
	assert.Equal(t, 1, ref.totalUnsubs())
}

func TestOneShot_SynchronousInitialDelivery(t *testing.T) {
	client := newFakeClient()
	ref := &fakeDocRef{path: "users/alice", onSub: existingDoc("alice", map[string]any{"name": "Ada"})}
	client.docs["users/alice"] = ref

	def := &Definition{
		Name: "ProfileOnce",
		Properties: map[string]Options{
			"user": {Doc: "users/{uid}", Type: TypeObject, Live: false},
		},
	}
	b, host := newTestBinder(t, def, client)
	host.Set("uid", "alice")
	require.NoError(t, b.Attach())

	// The snapshot arrived inside Snapshots, before the handle was
	// returned; the handle must still be invoked exactly once.
	assert.Equal(t, 1, ref.totalUnsubs())
	assert.False(t, b.Subscribed("user"))
	assert.Equal(t, map[string]any{"name": "Ada", IDKey: "alice"}, host.Get("user"))
	assert.Equal(t, true, host.Get("userReady"))
}

func TestCacheGating(t *testing.T) {
	client := newFakeClient()
	def := &Definition{
		Name: "Confirmed",
		Properties: map[string]Options{
			"user": {Doc: "users/{uid}", Type: TypeObject, Live: true, NoCache: true},
		},
	}
	b, host := newTestBinder(t, def, client)
	host.Set("uid", "alice")
	require.NoError(t, b.Attach())

	ref := client.docs["users/alice"]

	cached := fakeDocSnap{id: "alice", exists: true, data: map[string]any{"name": "Ada"}, fromCache: true}
	ref.deliver(cached)

	assert.Nil(t, host.Get("user"), "cache-origin snapshot must not assign")
	assert.Equal(t, false, host.Get("userReady"))
	assert.Equal(t, 1, ref.liveListeners(), "the listener keeps running")

	ref.deliver(existingDoc("alice", map[string]any{"name": "Ada"}))

	assert.Equal(t, map[string]any{"name": "Ada", IDKey: "alice"}, host.Get("user"))
	assert.Equal(t, true, host.Get("userReady"))
}

func TestQueryTransform_ListensOnTransformedQuery(t *testing.T) {
	client := newFakeClient()
	def := &Definition{
		Name: "PostList",
		Properties: map[string]Options{
			"posts": {
				Collection: "users/{uid}/posts",
				Type:       TypeArray,
				Live:       true,
				Query: func(q Query, host Component) Query {
					return q.Where("status", "==", host.Get("filter")).OrderBy("ts", true).Limit(10)
				},
			},
		},
	}
	b, host := newTestBinder(t, def, client)
	host.Set("uid", "alice")
	host.Set("filter", "published")
	require.NoError(t, b.Attach())

	ref := client.colls["users/alice/posts"]
	require.NotNil(t, ref)

	// The listener is attached through the transformed query, which
	// read other instance state.
	require.NotNil(t, ref.lastQuery)
	assert.Equal(t, []string{"status=="}, ref.lastQuery.wheres)
	assert.Equal(t, []string{"ts desc"}, ref.lastQuery.orderBys)
	assert.Equal(t, 10, ref.lastQuery.limit)

	// The exposed reference is the raw pre-transform collection.
	assert.Equal(t, ref, host.Get("postsRef"))
	assert.Same(t, ref, b.Ref("posts").(*fakeCollRef))
}

func TestNewBinder_RequiresHostAndClient(t *testing.T) {
	_, err := NewBinder(nil)
	assert.Error(t, err)

	// No option and no configured default.
	_, err = NewBinder(newFakeHost(userCardDef()))
	assert.Error(t, err)
}

func TestBinderTokens_FreshPerRebuild(t *testing.T) {
	client := newFakeClient()
	b, _ := newTestBinder(t, userCardDef(), client,
		WithTokenGenerator(NewFixedGenerator("tok-1", "tok-2")))
	require.NoError(t, b.Attach())

	require.NoError(t, b.Rebuild("user", "alice"))
	assert.Equal(t, "tok-1", b.state["user"].token)

	require.NoError(t, b.Rebuild("user", "alice"))
	assert.Equal(t, "tok-2", b.state["user"].token)
}
