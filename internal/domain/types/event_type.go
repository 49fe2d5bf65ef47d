package types

// ChannelEvent is the name of an event on the live tracking channel.
type ChannelEvent string

func (e ChannelEvent) String() string {
	return string(e)
}

const (
	EventJoinTripRoom   ChannelEvent = "join-trip-room"
	EventLeaveTripRoom  ChannelEvent = "leave-trip-room"
	EventTripOffer      ChannelEvent = "trip-offer"
	EventOfferRevoked   ChannelEvent = "offer-revoked"
	EventTripAccepted   ChannelEvent = "trip-accepted"
	EventTripStatus     ChannelEvent = "trip-status"
	EventTripCancelled  ChannelEvent = "trip-cancelled"
	EventPositionUpdate ChannelEvent = "position-update"
	EventNoFulfillers   ChannelEvent = "no-fulfillers"
	EventChatMessage    ChannelEvent = "chat-message"
	EventError          ChannelEvent = "error"
)

// TripEventType is stored in the trip_events history table.
type TripEventType string

const (
	TripEventCreated       TripEventType = "TRIP_CREATED"
	TripEventOffered       TripEventType = "TRIP_OFFERED"
	TripEventOfferRejected TripEventType = "OFFER_REJECTED"
	TripEventAccepted      TripEventType = "TRIP_ACCEPTED"
	TripEventStatusChanged TripEventType = "STATUS_CHANGED"
	TripEventCancelled     TripEventType = "TRIP_CANCELLED"
	TripEventNoFulfillers  TripEventType = "NO_FULFILLERS"
)
