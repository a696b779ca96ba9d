package rpc

import "fmt"

// Kind identifies an RPC record on the wire. Requests sit below 128,
// responses at 128 and above.
type Kind uint8

const (
	KindCreateEntity Kind = iota
	KindDestroyEntity
	KindAddChild
	KindRemoveChild
	KindRequestFullSync
	KindAddComponent
	KindRemoveComponent
	KindMoveEntity
	KindElevate
)

const (
	KindCreateEntityResponse Kind = 128 + iota
	KindAddChildResponse
	KindAddComponentResponse
	KindRemoveComponentResponse
	KindMoveEntityResponse
	KindElevateResponse
)

var kindNames = map[Kind]string{
	KindCreateEntity:            "create-entity",
	KindDestroyEntity:           "destroy-entity",
	KindAddChild:                "add-child",
	KindRemoveChild:             "remove-child",
	KindRequestFullSync:         "request-full-sync",
	KindAddComponent:            "add-component",
	KindRemoveComponent:         "remove-component",
	KindMoveEntity:              "move-entity",
	KindElevate:                 "elevate",
	KindCreateEntityResponse:    "create-entity-response",
	KindAddChildResponse:        "add-child-response",
	KindAddComponentResponse:    "add-component-response",
	KindRemoveComponentResponse: "remove-component-response",
	KindMoveEntityResponse:      "move-entity-response",
	KindElevateResponse:         "elevate-response",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind resolves a kind by its config name, e.g. "add-child".
func ParseKind(name string) (Kind, error) {
	for k, s := range kindNames {
		if s == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

func (k Kind) IsResponse() bool { return k >= 128 }

// Mutating reports whether the request changes the world and therefore
// needs an explicit grant.
func (k Kind) Mutating() bool {
	switch k {
	case KindCreateEntity, KindDestroyEntity, KindAddChild, KindRemoveChild,
		KindAddComponent, KindRemoveComponent:
		return true
	}
	return false
}

// Response returns the kind a request is answered with. ok is false for
// fire-and-forget requests.
func (k Kind) Response() (Kind, bool) {
	switch k {
	case KindCreateEntity:
		return KindCreateEntityResponse, true
	case KindAddChild:
		return KindAddChildResponse, true
	case KindAddComponent:
		return KindAddComponentResponse, true
	case KindRemoveComponent:
		return KindRemoveComponentResponse, true
	case KindElevate:
		return KindElevateResponse, true
	}
	return 0, false
}

// MutatingKinds lists every kind that needs a grant.
func MutatingKinds() []Kind {
	return []Kind{
		KindCreateEntity, KindDestroyEntity, KindAddChild, KindRemoveChild,
		KindAddComponent, KindRemoveComponent,
	}
}
