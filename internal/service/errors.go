package service

import "errors"

var (
	// ErrSlotUnavailable слот не объявлен, занят или уже активно забронирован
	ErrSlotUnavailable = errors.New("slot is not available")
	// ErrNotPending бронирование уже обработано
	ErrNotPending = errors.New("booking is not pending")
	// ErrNotExpired срок заявки ещё не истёк
	ErrNotExpired = errors.New("booking has not expired yet")
	// ErrConflict слот занят активным бронированием и не может быть удалён
	ErrConflict = errors.New("slot has an active booking")
	// ErrNotFound объект не существует или принадлежит другому супервизору
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput некорректные входные данные
	ErrInvalidInput = errors.New("invalid input")
	// ErrSupervisorHasActiveBookings супервизора нельзя деактивировать с активными бронированиями
	ErrSupervisorHasActiveBookings = errors.New("supervisor has active bookings")
)
