package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/esewa-gateway/internal/config"
	"github.com/akylbek/payment-system/esewa-gateway/internal/esewa"
	"github.com/akylbek/payment-system/esewa-gateway/internal/models"
	"github.com/akylbek/payment-system/esewa-gateway/internal/signer"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func newService(cmd *cobra.Command) (*esewa.Service, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	protocol, err := esewa.NewProtocol(cfg.Esewa, zap.NewNop())
	if err != nil {
		return nil, err
	}
	return esewa.NewService(protocol, cfg.Esewa.ProductCode, nil, nil, zap.NewNop()), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func signCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sign",
		Short:   "Print the canonical message and HMAC-SHA256 signature for a set of fields",
		Example: `  esewactl sign --field total_amount=113.00 --field transaction_uuid=abc123 --field product_code=EPAYTEST`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			raw, _ := cmd.Flags().GetStringArray("field")
			values := make(map[string]string, len(raw))
			for _, pair := range raw {
				name, value, ok := strings.Cut(pair, "=")
				if !ok || name == "" {
					return fmt.Errorf("field %q is not name=value", pair)
				}
				values[name] = value
			}

			names := signer.ParseFieldNames(cfg.Esewa.SignedFieldNames)
			if override, _ := cmd.Flags().GetString("names"); override != "" {
				names = signer.ParseFieldNames(override)
			}
			secret := cfg.Esewa.SecretKey
			if override, _ := cmd.Flags().GetString("secret"); override != "" {
				secret = override
			}

			message, err := signer.Message(names, values)
			if err != nil {
				return err
			}
			signature, err := signer.Sign(message, []byte(secret))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "message:   %s\n", message)
			fmt.Fprintf(out, "signature: %s\n", signature)
			return nil
		},
	}

	cmd.Flags().StringArrayP("field", "f", nil, "Field as name=value (repeatable)")
	cmd.Flags().String("names", "", "Comma-separated signed field names (default from config)")
	cmd.Flags().String("secret", "", "Secret key (default from config)")

	return cmd
}

func initiateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "initiate",
		Short: "Build the signed payment form for a purchase",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := models.TransactionRequest{}
			var err error
			if req.Amount, err = decimalFlag(cmd, "amount"); err != nil {
				return err
			}
			if req.TaxAmount, err = decimalFlag(cmd, "tax"); err != nil {
				return err
			}
			if req.ServiceCharge, err = decimalFlag(cmd, "service-charge"); err != nil {
				return err
			}
			if req.DeliveryCharge, err = decimalFlag(cmd, "delivery-charge"); err != nil {
				return err
			}
			req.ProductID, _ = cmd.Flags().GetString("product")

			service, err := newService(cmd)
			if err != nil {
				return err
			}

			result := service.Initiate(context.Background(), req)
			if err := printJSON(cmd, result); err != nil {
				return err
			}
			if !result.Success {
				return errors.New("initiation failed")
			}
			return nil
		},
	}

	cmd.Flags().String("amount", "", "Purchase amount")
	cmd.Flags().String("tax", "0", "Tax amount")
	cmd.Flags().String("service-charge", "0", "Service charge")
	cmd.Flags().String("delivery-charge", "0", "Delivery charge")
	cmd.Flags().String("product", "", "Merchant product id")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("product")

	return cmd
}

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Ask the gateway for the status of a transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimalFlag(cmd, "amount")
			if err != nil {
				return err
			}
			txn, _ := cmd.Flags().GetString("txn")
			refID, _ := cmd.Flags().GetString("ref-id")
			productCode, _ := cmd.Flags().GetString("product-code")

			service, err := newService(cmd)
			if err != nil {
				return err
			}

			outcome := service.Verify(context.Background(), models.VerificationRequest{
				TransactionID: txn,
				ProductCode:   productCode,
				TotalAmount:   amount,
				RefID:         refID,
			})
			if err := printJSON(cmd, outcome); err != nil {
				return err
			}
			if !outcome.Success {
				return fmt.Errorf("payment not verified: %s", outcome.Status)
			}
			return nil
		},
	}

	cmd.Flags().String("txn", "", "Transaction id")
	cmd.Flags().String("amount", "", "Expected total amount")
	cmd.Flags().String("ref-id", "", "Gateway reference id (legacy protocol)")
	cmd.Flags().String("product-code", "", "Merchant product code (default from config)")
	_ = cmd.MarkFlagRequired("txn")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func decimalFlag(cmd *cobra.Command, name string) (decimal.Decimal, error) {
	raw, _ := cmd.Flags().GetString(name)
	value, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: %w", name, err)
	}
	return value, nil
}
