package secrets

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Provider возвращает актуальный набор секретов.
//
// Вызывается один раз на вызов worker'а, поэтому ротация секрета
// подхватывается без рестарта.
type Provider interface {
	Bundle(ctx context.Context) (Bundle, error)
}

// StaticProvider — провайдер с заранее известным набором
// (SECRET_BACKEND=env, тесты).
type StaticProvider struct {
	bundle Bundle
}

// NewStatic создаёт StaticProvider.
func NewStatic(b Bundle) *StaticProvider {
	return &StaticProvider{bundle: b}
}

// NewStaticJSON создаёт StaticProvider из JSON документа.
func NewStaticJSON(data string) (*StaticProvider, error) {
	b, err := ParseBundle([]byte(data))
	if err != nil {
		return nil, err
	}
	return NewStatic(b), nil
}

// Bundle возвращает набор секретов.
func (p *StaticProvider) Bundle(ctx context.Context) (Bundle, error) {
	return p.bundle, nil
}

// SSMAPI — подмножество *ssm.Client.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, opts ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMProvider читает набор секретов из SecureString параметра SSM.
// Значение параметра — JSON документ Bundle.
type SSMProvider struct {
	client SSMAPI
	name   string
}

// NewSSM создаёт SSMProvider для параметра name.
func NewSSM(client SSMAPI, name string) *SSMProvider {
	return &SSMProvider{client: client, name: name}
}

// Bundle читает и разбирает параметр.
func (p *SSMProvider) Bundle(ctx context.Context) (Bundle, error) {
	out, err := p.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &p.name,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return Bundle{}, fmt.Errorf("SSM GetParameter %s: %w", p.name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return Bundle{}, fmt.Errorf("%w: parameter %s has no value", ErrInvalidBundle, p.name)
	}
	return ParseBundle([]byte(*out.Parameter.Value))
}
