package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Parameter keys read outside the scheduler.
const (
	ParamAutoApprove         = "PEDIDO_AUTOMATICO_APROBAR"
	ParamHorizonDays         = "PEDIDO_AUTOMATICO_DIAS_HORIZONTE"
	ParamDeliveryOffsetDays  = "PEDIDO_ENTREGA_DIAS"
	ParamNotifyRetryCount    = "CANTIDAD_REINTENTOS_NOTIFICACION"
	ParamNotifyRetryInterval = "INTERVALO_REINTENTOS_NOTIFICACION"
	ParamOperatorEmail       = "OPERADOR_EMAIL"
	ParamOperatorTelegram    = "OPERADOR_TELEGRAM"
)

// ParamString returns the parameter value, or def when it is absent or blank.
func ParamString(ctx context.Context, ps ParameterStore, key, def string) (string, error) {
	v, ok, err := ps.GetParameter(ctx, key)
	if err != nil {
		return "", fmt.Errorf("read parameter %s: %w", key, err)
	}
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	return strings.TrimSpace(v), nil
}

// ParamInt parses an integer parameter, falling back to def when absent.
func ParamInt(ctx context.Context, ps ParameterStore, key string, def int) (int, error) {
	v, err := ParamString(ctx, ps, key, "")
	if err != nil {
		return 0, err
	}
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parameter %s: %q is not an integer", key, v)
	}
	return n, nil
}

// ParamBool parses a boolean parameter. Accepts true/false, si/no, 1/0.
func ParamBool(ctx context.Context, ps ParameterStore, key string, def bool) (bool, error) {
	v, err := ParamString(ctx, ps, key, "")
	if err != nil {
		return false, err
	}
	if v == "" {
		return def, nil
	}
	switch FoldLabel(v) {
	case "true", "1", "si", "s", "yes", "y", "habilitado", "activo":
		return true, nil
	case "false", "0", "no", "n", "deshabilitado", "inactivo":
		return false, nil
	}
	return false, fmt.Errorf("parameter %s: %q is not a boolean", key, v)
}
