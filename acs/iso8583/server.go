package iso8583

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alovak/paytrust/internal/expiry"
	"github.com/alovak/paytrust/internal/redact"
	"github.com/alovak/paytrust/threeds"
	"github.com/alovak/paytrust/vault"
	"github.com/moov-io/iso8583"
	connection "github.com/moov-io/iso8583-connection"
	"github.com/moov-io/iso8583-connection/server"
	"golang.org/x/exp/slog"
)

const handlerTimeout = 10 * time.Second

// Server exposes any threeds.ACS over ISO 8583. The gateway uses it to run
// the simulator as a separate network hop.
type Server struct {
	Addr   string
	logger *slog.Logger
	server *server.Server
	acs    threeds.ACS
}

func NewServer(logger *slog.Logger, addr string, acs threeds.ACS) *Server {
	return &Server{
		Addr:   addr,
		logger: logger.With(slog.String("component", "acs-server")),
		acs:    acs,
	}
}

func (s *Server) Start() error {
	srv := server.New(spec, readMessageLength, writeMessageLength,
		connection.InboundMessageHandler(s.handleRequest),
	)

	if err := srv.Start(s.Addr); err != nil {
		return fmt.Errorf("starting iso8583 server: %w", err)
	}

	s.Addr = srv.Addr
	s.server = srv
	s.logger.Info("iso8583 server started", slog.String("addr", s.Addr))
	return nil
}

func (s *Server) Close() error {
	if s.server != nil {
		s.server.Close()
	}
	return nil
}

func (s *Server) handleRequest(c *connection.Connection, message *iso8583.Message) {
	mti, err := message.GetMTI()
	if err != nil {
		s.logger.Error("getting mti", "err", err)
		return
	}

	var response *iso8583.Message
	switch mti {
	case mtiChallengeRequest:
		response = s.challenge(message)
	case mtiVerifyRequest:
		response = s.verify(message)
	default:
		s.logger.Error("unsupported message", slog.String("mti", mti))
		return
	}

	if err := c.Reply(response); err != nil {
		s.logger.Error("replying to message", slog.String("mti", mti), "err", err)
	}
}

func (s *Server) challenge(message *iso8583.Message) *iso8583.Message {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	response := newResponse(message, mtiChallengeResponse)

	req, err := decodeChallenge(message)
	if err != nil {
		s.logger.Error("decoding challenge request", "err", err)
		setResponse(response, codeError, "")
		return response
	}

	ch, err := s.acs.Challenge(ctx, *req)
	var ce *threeds.ChallengeError
	switch {
	case errors.As(err, &ce):
		setResponse(response, codeDeclined, ce.Reason)
	case err != nil:
		s.logger.Error("acs challenge", append(redact.PANAttrs(req.Card.PAN), "err", err)...)
		setResponse(response, codeError, "")
	default:
		setResponse(response, codeApproved, "")
		err = setFields(response, map[int]string{
			fieldMD:      ch.MD,
			fieldPayload: ch.PAReq,
			fieldACSURL:  ch.ACSURL,
		})
		if err != nil {
			s.logger.Error("encoding challenge response", "err", err)
			response = newResponse(message, mtiChallengeResponse)
			setResponse(response, codeError, "")
		}
	}
	return response
}

func (s *Server) verify(message *iso8583.Message) *iso8583.Message {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	response := newResponse(message, mtiVerifyResponse)

	v, err := s.acs.Verify(ctx, getField(message, fieldMD), getField(message, fieldPayload))
	switch {
	case err != nil:
		s.logger.Error("acs verify", "err", err)
		setResponse(response, codeError, "")
	case v.Success:
		setResponse(response, codeApproved, "")
	default:
		setResponse(response, codeDeclined, v.Reason)
	}
	return response
}

func decodeChallenge(message *iso8583.Message) (*threeds.ChallengeRequest, error) {
	month, year, err := expiry.SplitYYMM(getField(message, fieldExpiry))
	if err != nil {
		return nil, fmt.Errorf("decoding expiry: %w", err)
	}

	currency := getField(message, fieldCurrency)
	amount, err := fromMinorUnits(getField(message, fieldAmount), currency)
	if err != nil {
		return nil, err
	}

	return &threeds.ChallengeRequest{
		Card: vault.CardData{
			PAN:         getField(message, fieldPAN),
			ExpiryMonth: month,
			ExpiryYear:  year,
		},
		Amount:      amount,
		Currency:    currency,
		OrderID:     getField(message, fieldOrderID),
		Description: getField(message, fieldDescription),
	}, nil
}

// newResponse starts a reply carrying the request STAN, which the client
// uses to match it.
func newResponse(request *iso8583.Message, mti string) *iso8583.Message {
	response := iso8583.NewMessage(spec)
	response.MTI(mti)
	if stan := getField(request, fieldSTAN); stan != "" {
		response.Field(fieldSTAN, stan)
	}
	return response
}

func setResponse(response *iso8583.Message, code, reason string) {
	response.Field(fieldResponse, code)
	if reason != "" {
		response.Field(fieldReason, truncate(reason, 99))
	}
}
