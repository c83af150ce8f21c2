package sqlinline

const QSelectIntegrationToken = `--sql 3f2c41d8-19be-4d0a-9c7e-5a1d20f0b6c4
select token
from integration_tokens
where provider = $1::text
limit 1;
`

const QUpsertIntegrationToken = `--sql c7a90e13-6b52-4f8d-b1a4-08d3c5e9f2ab
insert into integration_tokens (id, provider, token, created_at, updated_at)
values (gen_random_uuid(), $1::text, $2::text, now(), now())
on conflict (provider) do update set
    token = excluded.token,
    updated_at = now();
`
